package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy bounds how often a transient store failure is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// BaseDelay is the backoff before the second try; it doubles per
	// attempt up to MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultPolicy matches the bounded-retry behavior expected for store
// lock/busy contention.
func DefaultPolicy() Policy {
	return Policy{Attempts: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable store contention. Storage adapters wrap
// lock-timeout/serialization failures with it; everything else propagates
// through Do immediately.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked by Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Do runs fn, retrying failures marked transient with capped exponential
// backoff plus full jitter. Domain and other unexpected errors return on
// the first occurrence. Exhausting all attempts returns the last
// transient error.
func Do(ctx context.Context, p Policy, fn func() error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(p, attempt)):
			}
		}
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
	}
	return err
}

func backoff(p Policy, attempt int) time.Duration {
	d := p.BaseDelay
	for i := 2; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay {
			d = p.MaxDelay
			break
		}
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d))) + 1
}
