package repositories

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errInvalidCancelState = errors.New("cancel state must be CANCELLED or AUTO_CANCELLED")
	errUnknownLeg         = errors.New("trade leg must be 1 or 2")
	errMissingTxID        = errors.New("transaction record needs a hash or a signature")
)

// rowScanner covers both pgx.Row and pgx.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsDeadlineViolation reports whether the error is the trades deadline guard
// trigger rejecting a write. Callers treat this as a correctly refused update,
// not a fault.
func IsDeadlineViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "P0001" && strings.Contains(pgErr.Message, "deadline")
}
