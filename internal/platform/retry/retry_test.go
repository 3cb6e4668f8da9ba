package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/campushub/activity-registration-api/internal/platform/retry"
)

func fastPolicy(attempts int) retry.Policy {
	return retry.Policy{Attempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := retry.Do(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return retry.Transient(errors.New("busy"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	t.Parallel()

	boom := errors.New("domain rejection")
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d, non-transient errors must not retry", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	busy := errors.New("still busy")
	calls := 0
	err := retry.Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return retry.Transient(busy)
	})
	if !errors.Is(err, busy) || !retry.IsTransient(err) {
		t.Fatalf("err=%v", err)
	}
	if calls != 3 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDo_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Do(ctx, retry.Policy{Attempts: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}, func() error {
		calls++
		cancel()
		return retry.Transient(errors.New("busy"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	if retry.IsTransient(errors.New("plain")) {
		t.Fatal("plain error reported transient")
	}
	wrapped := retry.Transient(errors.New("busy"))
	if !retry.IsTransient(wrapped) {
		t.Fatal("marked error not reported transient")
	}
	// The marker survives further wrapping.
	if !retry.IsTransient(errors.Join(errors.New("ctx"), wrapped)) {
		t.Fatal("marker lost through wrapping")
	}
	if retry.Transient(nil) != nil {
		t.Fatal("Transient(nil) must be nil")
	}
}
