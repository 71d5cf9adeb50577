package db

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

func TestIsTransientConnErr(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"econnreset", syscall.ECONNRESET, true},
		{"epipe", syscall.EPIPE, true},
		{"wrapped econnreset", fmt.Errorf("write failed: %w", syscall.ECONNRESET), true},
		{"reset by peer text", errors.New("read tcp 10.0.0.1:5432: connection reset by peer"), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"pgconn closed", errors.New("conn closed"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"no rows", pgx.ErrNoRows, false},
		{"constraint violation", errors.New(`duplicate key value violates unique constraint "transactions_hash_network"`), false},
		{"syntax error", errors.New("ERROR: syntax error at or near \"SELEC\" (SQLSTATE 42601)"), false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientConnErr(tt.err); got != tt.expected {
				t.Errorf("isTransientConnErr(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSleepRetryBackoffDoubles(t *testing.T) {
	// Attempt 2 waits one base step, attempt 3 waits two.
	start := time.Now()
	if !sleepRetry(context.Background(), 2) {
		t.Fatal("sleepRetry returned false without cancellation")
	}
	first := time.Since(start)

	start = time.Now()
	if !sleepRetry(context.Background(), 3) {
		t.Fatal("sleepRetry returned false without cancellation")
	}
	second := time.Since(start)

	if first < queryRetryBase {
		t.Errorf("attempt 2 waited %v, want at least %v", first, queryRetryBase)
	}
	if second < 2*queryRetryBase {
		t.Errorf("attempt 3 waited %v, want at least %v", second, 2*queryRetryBase)
	}
}

func TestSleepRetryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepRetry(ctx, 2) {
		t.Error("sleepRetry should return false when context is already cancelled")
	}
}
