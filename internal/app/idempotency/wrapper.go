package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campushub/activity-registration-api/internal/app/apperr"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

// Do wraps a mutating operation with claim/execute/store-result/replay
// semantics. The wrapped op must contain the entire business transaction,
// so a replayed response always reflects a transaction that either fully
// committed or never started.
//
// With an empty client key the op runs unprotected. Otherwise:
//   - a fresh claim executes op and stores its outcome (success or domain
//     error) on the claim row, write-once;
//   - a completed claim replays the stored outcome byte for byte without
//     re-executing op;
//   - an unfinished claim fails with IDEMPOTENCY_IN_PROGRESS;
//   - a claim whose fingerprint differs fails with IDEMPOTENCY_KEY_REUSE.
//
// An op failing with anything other than an *apperr.Error is treated as
// unexpected: the claim is released so a later retry can run again, and
// no success is ever recorded for the failed attempt.
func Do[T any](ctx context.Context, store idemstore.Store, c idemstore.Claim, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if c.Key == "" {
		return op(ctx)
	}

	res, err := store.Claim(ctx, c)
	if err != nil {
		return zero, err
	}

	switch res.State {
	case idemstore.StateReplay:
		return decode[T](res.Response)
	case idemstore.StateInProgress:
		return zero, &apperr.Error{
			Status:  http.StatusConflict,
			Code:    apperr.CodeIdempotencyInProgress,
			Message: "a request with this idempotency key is still in flight",
		}
	case idemstore.StateKeyReuse:
		return zero, &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeIdempotencyKeyReuse,
			Message: "idempotency key was already used for a different request",
		}
	case idemstore.StateNew:
		// fall through to execute
	default:
		return zero, errors.New("unknown idempotency claim state " + string(res.State))
	}

	out, opErr := op(ctx)
	if opErr != nil {
		if ae, ok := apperr.As(opErr); ok {
			if body, mErr := json.Marshal(ae); mErr == nil {
				// Best effort: a failed completion write leaves the claim
				// in progress, which a later retry will surface.
				_ = store.Complete(ctx, c, idemstore.Response{Status: ae.Status, Body: body})
			}
			return zero, ae
		}
		_ = store.Release(ctx, c)
		return zero, opErr
	}

	body, err := json.Marshal(out)
	if err != nil {
		_ = store.Release(ctx, c)
		return zero, err
	}
	// The business transaction already committed; degrade replay
	// protection rather than failing the request on a ledger write error.
	_ = store.Complete(ctx, c, idemstore.Response{Status: http.StatusOK, Body: body})
	return out, nil
}

func decode[T any](resp *idemstore.Response) (T, error) {
	var zero T
	if resp == nil {
		return zero, errors.New("replayed claim has no stored response")
	}
	if resp.Status >= http.StatusBadRequest {
		var ae apperr.Error
		if err := json.Unmarshal(resp.Body, &ae); err != nil {
			return zero, err
		}
		return zero, &ae
	}
	var out T
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return zero, err
	}
	return out, nil
}
