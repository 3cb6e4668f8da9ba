package idempotency_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	memidemstore "github.com/campushub/activity-registration-api/internal/adapters/memory/idemstore"
	"github.com/campushub/activity-registration-api/internal/app/apperr"
	"github.com/campushub/activity-registration-api/internal/app/idempotency"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

type payload struct {
	Value string `json:"value"`
}

func claim(key string) idemstore.Claim {
	return idemstore.Claim{ActorID: "u1", Action: "register", Key: key, Fingerprint: "a1"}
}

func TestDo_EmptyKeyRunsUnprotected(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	calls := 0
	op := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Value: "ok"}, nil
	}

	for i := 0; i < 2; i++ {
		out, err := idempotency.Do(context.Background(), store, claim(""), op)
		if err != nil || out.Value != "ok" {
			t.Fatalf("Do: out=%+v err=%v", out, err)
		}
	}
	if calls != 2 {
		t.Fatalf("calls=%d, empty key must not dedupe", calls)
	}
}

func TestDo_ReplaysStoredSuccess(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	calls := 0
	op := func(ctx context.Context) (payload, error) {
		calls++
		return payload{Value: "first"}, nil
	}

	out, err := idempotency.Do(context.Background(), store, claim("k1"), op)
	if err != nil || out.Value != "first" {
		t.Fatalf("first Do: out=%+v err=%v", out, err)
	}

	out, err = idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		t.Fatal("op must not run on replay")
		return payload{}, nil
	})
	if err != nil || out.Value != "first" {
		t.Fatalf("replay Do: out=%+v err=%v", out, err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestDo_ReplaysStoredDomainError(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	wantErr := &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeFull, Message: "no remaining slots"}

	_, err := idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		return payload{}, wantErr
	})
	if ae, ok := apperr.As(err); !ok || ae.Code != apperr.CodeFull {
		t.Fatalf("first err=%v", err)
	}

	_, err = idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		t.Fatal("op must not run on replay")
		return payload{}, nil
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Status != http.StatusConflict || ae.Code != apperr.CodeFull || ae.Message != "no remaining slots" {
		t.Fatalf("replayed err=%v", err)
	}
}

func TestDo_UnexpectedFailureReleasesClaim(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	boom := errors.New("infrastructure down")

	_, err := idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		return payload{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}

	// The key is reusable: no success or failure was recorded.
	out, err := idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		return payload{Value: "recovered"}, nil
	})
	if err != nil || out.Value != "recovered" {
		t.Fatalf("retry Do: out=%+v err=%v", out, err)
	}
}

func TestDo_InProgressConflicts(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	c := claim("k1")
	if _, err := store.Claim(context.Background(), c); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	_, err := idempotency.Do(context.Background(), store, c, func(ctx context.Context) (payload, error) {
		t.Fatal("op must not run while claim is in flight")
		return payload{}, nil
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Status != http.StatusConflict || ae.Code != apperr.CodeIdempotencyInProgress {
		t.Fatalf("err=%v", err)
	}
}

func TestDo_FingerprintMismatchIsKeyReuse(t *testing.T) {
	t.Parallel()

	store := memidemstore.NewStore()
	if _, err := idempotency.Do(context.Background(), store, claim("k1"), func(ctx context.Context) (payload, error) {
		return payload{Value: "ok"}, nil
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	other := claim("k1")
	other.Fingerprint = "a2"
	_, err := idempotency.Do(context.Background(), store, other, func(ctx context.Context) (payload, error) {
		t.Fatal("op must not run on key reuse")
		return payload{}, nil
	})
	ae, ok := apperr.As(err)
	if !ok || ae.Status != http.StatusUnprocessableEntity || ae.Code != apperr.CodeIdempotencyKeyReuse {
		t.Fatalf("err=%v", err)
	}
}
