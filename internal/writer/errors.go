package writer

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// RecoverableError marks a database failure the engine may checkpoint
// and resume from: transaction aborts, deadlocks, serialization
// failures and dropped connections. Schema mismatches and everything
// else stay fatal.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string { return "writer: recoverable: " + e.Err.Error() }
func (e *RecoverableError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err allows a resume.
func IsRecoverable(err error) bool {
	var r *RecoverableError
	return errors.As(err, &r)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	// Cancellation is handled upstream, not re-classified here.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 40: transaction rollback (serialization, deadlock).
		// Class 08: connection exceptions.
		if strings.HasPrefix(pgErr.Code, "40") || strings.HasPrefix(pgErr.Code, "08") {
			return &RecoverableError{Err: err}
		}
		return err
	}

	if pgconn.SafeToRetry(err) {
		return &RecoverableError{Err: err}
	}
	return err
}
