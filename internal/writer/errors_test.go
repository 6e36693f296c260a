package writer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
	}{
		{
			name:        "serialization failure",
			err:         &pgconn.PgError{Code: "40001"},
			recoverable: true,
		},
		{
			name:        "deadlock detected",
			err:         &pgconn.PgError{Code: "40P01"},
			recoverable: true,
		},
		{
			name:        "connection failure",
			err:         &pgconn.PgError{Code: "08006"},
			recoverable: true,
		},
		{
			name:        "unique violation stays fatal",
			err:         &pgconn.PgError{Code: "23505"},
			recoverable: false,
		},
		{
			name:        "undefined column stays fatal",
			err:         &pgconn.PgError{Code: "42703"},
			recoverable: false,
		},
		{
			name:        "wrapped pg error",
			err:         fmt.Errorf("upsert Products 1: %w", &pgconn.PgError{Code: "40001"}),
			recoverable: true,
		},
		{
			name:        "plain error",
			err:         errors.New("boom"),
			recoverable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsRecoverable(got) != tt.recoverable {
				t.Errorf("classify(%v) recoverable = %v, want %v", tt.err, IsRecoverable(got), tt.recoverable)
			}
		})
	}
}

func TestClassifyPassesCancellationThrough(t *testing.T) {
	for _, err := range []error{context.Canceled, context.DeadlineExceeded} {
		got := classify(fmt.Errorf("commit: %w", err))
		if IsRecoverable(got) {
			t.Errorf("classify(%v) should not wrap cancellation as recoverable", err)
		}
		if !errors.Is(got, err) {
			t.Errorf("classify(%v) lost the original error", err)
		}
	}
}

func TestClassifyNil(t *testing.T) {
	if classify(nil) != nil {
		t.Error("classify(nil) should stay nil")
	}
}

func TestRecoverableErrorUnwraps(t *testing.T) {
	cause := &pgconn.PgError{Code: "40001"}
	err := classify(cause)

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Errorf("classified error should unwrap to the original PgError, got %v", err)
	}
}
