package db

import (
	"context"
	"errors"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const (
	queryMaxAttempts = 3
	queryRetryBase   = 200 * time.Millisecond
)

// Querier wraps the pool with bounded retry on connection-reset-class errors.
// Everything else, including pgx.ErrNoRows, propagates immediately. All
// repositories go through it instead of touching the pool directly.
type Querier struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewQuerier(pool *pgxpool.Pool, log *zap.Logger) *Querier {
	return &Querier{pool: pool, log: log}
}

func (q *Querier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	var err error
	for attempt := 1; attempt <= queryMaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleepRetry(ctx, attempt) {
				return tag, ctx.Err()
			}
			q.log.Warn("retrying exec after connection error", zap.Int("attempt", attempt), zap.Error(err))
		}
		tag, err = q.pool.Exec(ctx, sql, args...)
		if err == nil || !isTransientConnErr(err) {
			return tag, err
		}
	}
	return tag, err
}

func (q *Querier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	var err error
	for attempt := 1; attempt <= queryMaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleepRetry(ctx, attempt) {
				return nil, ctx.Err()
			}
			q.log.Warn("retrying query after connection error", zap.Int("attempt", attempt), zap.Error(err))
		}
		rows, err = q.pool.Query(ctx, sql, args...)
		if err == nil || !isTransientConnErr(err) {
			return rows, err
		}
	}
	return rows, err
}

// QueryRow defers execution to Scan, so the retry loop lives there.
func (q *Querier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return &retryRow{q: q, ctx: ctx, sql: sql, args: args}
}

type retryRow struct {
	q    *Querier
	ctx  context.Context
	sql  string
	args []any
}

func (r *retryRow) Scan(dest ...any) error {
	var err error
	for attempt := 1; attempt <= queryMaxAttempts; attempt++ {
		if attempt > 1 {
			if !sleepRetry(r.ctx, attempt) {
				return r.ctx.Err()
			}
			r.q.log.Warn("retrying query after connection error", zap.Int("attempt", attempt), zap.Error(err))
		}
		err = r.q.pool.QueryRow(r.ctx, r.sql, r.args...).Scan(dest...)
		if err == nil || !isTransientConnErr(err) {
			return err
		}
	}
	return err
}

// sleepRetry waits 200ms, 400ms, ... before the given attempt. Returns false
// when the context was cancelled while waiting.
func sleepRetry(ctx context.Context, attempt int) bool {
	delay := queryRetryBase << (attempt - 2)
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func isTransientConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection reset",
		"broken pipe",
		"conn closed",
		"unexpected EOF",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
