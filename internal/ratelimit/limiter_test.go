package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// limitedErr simulates an upstream 429.
type limitedErr struct{}

func (limitedErr) Error() string     { return "too many requests" }
func (limitedErr) RateLimited() bool { return true }

func TestExecuteSuccess(t *testing.T) {
	l := New(6000, time.Millisecond, 3)
	defer l.Close()

	calls := 0
	err := l.Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	st := l.Stats()
	if st.Total != 1 || st.Successful != 1 || st.Failed != 0 {
		t.Errorf("Stats() = %+v, want total=1 successful=1 failed=0", st)
	}
}

func TestExecuteRetriesRateLimited(t *testing.T) {
	l := New(6000, time.Millisecond, 5)
	defer l.Close()

	calls := 0
	err := l.Execute(context.Background(), func(context.Context) error {
		calls++
		if calls <= 2 {
			return limitedErr{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}

	st := l.Stats()
	if st.Successful != 1 {
		t.Errorf("successful = %d, want 1", st.Successful)
	}
	if st.Retries != 2 {
		t.Errorf("retries = %d, want 2", st.Retries)
	}
	if st.RateLimitHits != 2 {
		t.Errorf("rateLimitHits = %d, want 2", st.RateLimitHits)
	}
}

func TestExecuteExhaustsRetries(t *testing.T) {
	l := New(6000, time.Millisecond, 2)
	defer l.Close()

	calls := 0
	err := l.Execute(context.Background(), func(context.Context) error {
		calls++
		return limitedErr{}
	})
	if err == nil {
		t.Fatal("Execute() expected error after exhausting retries")
	}
	// Initial attempt plus maxRetries re-executions.
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}

	st := l.Stats()
	if st.Failed != 1 {
		t.Errorf("failed = %d, want 1", st.Failed)
	}
	if st.Retries != 2 {
		t.Errorf("retries = %d, want 2", st.Retries)
	}
	if st.RateLimitHits != 3 {
		t.Errorf("rateLimitHits = %d, want 3", st.RateLimitHits)
	}
}

func TestExecuteDoesNotRetryOtherErrors(t *testing.T) {
	l := New(6000, time.Millisecond, 5)
	defer l.Close()

	boom := errors.New("boom")
	calls := 0
	err := l.Execute(context.Background(), func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}

	st := l.Stats()
	if st.Failed != 1 || st.Retries != 0 {
		t.Errorf("Stats() = %+v, want failed=1 retries=0", st)
	}
}

func TestExecuteHonorsCancellation(t *testing.T) {
	l := New(6000, time.Millisecond, 5)
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Execute(ctx, func(context.Context) error {
		t.Error("fn should not run with a cancelled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestExecuteAfterClose(t *testing.T) {
	l := New(6000, time.Millisecond, 5)
	l.Close()

	err := l.Execute(context.Background(), func(context.Context) error { return nil })
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Execute() error = %v, want ErrClosed", err)
	}
}

func TestSpacingBetweenOperations(t *testing.T) {
	// 1200/min = one start per 50ms.
	l := New(1200, time.Millisecond, 0)
	defer l.Close()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}
	// First start is immediate; the next two wait 50ms each.
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 operations finished in %v, want >= ~100ms of spacing", elapsed)
	}
}

func TestQueueIsFIFO(t *testing.T) {
	l := New(1200, time.Millisecond, 0)
	defer l.Close()

	var order []int
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			l.Execute(context.Background(), func(context.Context) error {
				order = append(order, i)
				return nil
			})
		}
	}()
	<-done

	for i, got := range order {
		if got != i {
			t.Fatalf("operation order = %v, want sequential", order)
		}
	}
}
