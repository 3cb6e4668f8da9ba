// Package contracttest holds shared behavioral suites that every adapter
// implementing an out port must pass. The memory and postgres adapters
// run the same suites, so a divergence between them shows up as a test
// failure rather than a production surprise.
package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/activity-registration-api/internal/domain"
	activitystoreport "github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
	idemstoreport "github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

type CleanupFunc = func()

type ActivityStoreFactory func(t *testing.T) (activitystoreport.Store, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idemstoreport.Store, CleanupFunc)

func seedActivity(capacity, remaining int, status domain.Status) activitystoreport.Activity {
	now := time.Unix(5000, 0).UTC()
	return activitystoreport.Activity{
		ID:             domain.ActivityID(uuid.NewString()),
		Title:          "Campus Hackathon",
		Description:    "Overnight build session",
		Location:       "Building 7",
		Date:           now.Add(48 * time.Hour),
		Deadline:       now.Add(24 * time.Hour),
		Capacity:       capacity,
		RemainingSlots: remaining,
		Status:         status,
		CreatedBy:      domain.UserID("owner-1"),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func RunActivityStore(t *testing.T, newStore ActivityStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	a := seedActivity(2, 2, domain.StatusPublished)
	if err := store.CreateActivity(ctx, a); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}
	if err := store.CreateActivity(ctx, a); !errors.Is(err, activitystoreport.ErrActivityExists) {
		t.Fatalf("expected ErrActivityExists, got %v", err)
	}

	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if got.Title != a.Title || got.Capacity != 2 || got.RemainingSlots != 2 || got.Status != domain.StatusPublished {
		t.Fatalf("unexpected activity: %#v", got)
	}
	if _, err := store.GetActivity(ctx, domain.ActivityID(uuid.NewString())); !errors.Is(err, activitystoreport.ErrActivityNotFound) {
		t.Fatalf("expected ErrActivityNotFound, got %v", err)
	}

	// Conditional slot claim: succeeds while slots remain and status is
	// published, then reports claimed=false.
	for i := 0; i < 2; i++ {
		claimed, err := store.ClaimSlot(ctx, a.ID)
		if err != nil || !claimed {
			t.Fatalf("ClaimSlot %d: claimed=%v err=%v", i, claimed, err)
		}
	}
	claimed, err := store.ClaimSlot(ctx, a.ID)
	if err != nil {
		t.Fatalf("ClaimSlot exhausted: %v", err)
	}
	if claimed {
		t.Fatalf("expected claimed=false when no slots remain")
	}

	// Release restores a slot, bounded by capacity.
	released, err := store.ReleaseSlot(ctx, a.ID)
	if err != nil || !released {
		t.Fatalf("ReleaseSlot: released=%v err=%v", released, err)
	}
	if got, _ := store.GetActivity(ctx, a.ID); got.RemainingSlots != 1 {
		t.Fatalf("expected 1 remaining slot, got %d", got.RemainingSlots)
	}

	// Claim refuses non-published activities regardless of slots.
	if err := store.SetStatus(ctx, a.ID, domain.StatusClosed); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	claimed, err = store.ClaimSlot(ctx, a.ID)
	if err != nil {
		t.Fatalf("ClaimSlot closed: %v", err)
	}
	if claimed {
		t.Fatalf("expected claimed=false on closed activity")
	}

	runRegistrationContract(t, ctx, store)
	runTxContract(t, ctx, store)
}

func runRegistrationContract(t *testing.T, ctx context.Context, store activitystoreport.Store) {
	t.Helper()

	a := seedActivity(3, 3, domain.StatusPublished)
	if err := store.CreateActivity(ctx, a); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}

	user := domain.UserID("student-1")
	now := time.Unix(6000, 0).UTC()
	reg := activitystoreport.Registration{
		ID:         domain.RegistrationID(uuid.NewString()),
		ActivityID: a.ID,
		UserID:     user,
		CreatedAt:  now,
	}
	if _, err := store.GetRegistration(ctx, a.ID, user); !errors.Is(err, activitystoreport.ErrRegistrationNotFound) {
		t.Fatalf("expected ErrRegistrationNotFound, got %v", err)
	}
	if err := store.CreateRegistration(ctx, reg); err != nil {
		t.Fatalf("CreateRegistration: %v", err)
	}

	// One row per (activity, user).
	dup := reg
	dup.ID = domain.RegistrationID(uuid.NewString())
	if err := store.CreateRegistration(ctx, dup); !errors.Is(err, activitystoreport.ErrRegistrationExists) {
		t.Fatalf("expected ErrRegistrationExists, got %v", err)
	}

	got, err := store.GetRegistration(ctx, a.ID, user)
	if err != nil {
		t.Fatalf("GetRegistration: %v", err)
	}
	if !got.Active() {
		t.Fatalf("expected active registration")
	}

	canceledAt := now.Add(time.Minute)
	if err := store.CancelRegistration(ctx, a.ID, user, canceledAt); err != nil {
		t.Fatalf("CancelRegistration: %v", err)
	}
	got, err = store.GetRegistration(ctx, a.ID, user)
	if err != nil {
		t.Fatalf("GetRegistration after cancel: %v", err)
	}
	if got.Active() || got.CanceledAt == nil || !got.CanceledAt.Equal(canceledAt) {
		t.Fatalf("expected canceled registration, got %#v", got)
	}

	// Canceled rows still count as existing and can be revived.
	revived, err := store.ReviveRegistration(ctx, a.ID, user)
	if err != nil || !revived {
		t.Fatalf("ReviveRegistration: revived=%v err=%v", revived, err)
	}
	got, err = store.GetRegistration(ctx, a.ID, user)
	if err != nil || !got.Active() {
		t.Fatalf("expected revived registration, got %#v err=%v", got, err)
	}

	// Reviving an already-active row affects nothing; the caller treats
	// it as a lost race, not an error.
	revived, err = store.ReviveRegistration(ctx, a.ID, user)
	if err != nil || revived {
		t.Fatalf("revive of active row: revived=%v err=%v", revived, err)
	}
	if revived, err = store.ReviveRegistration(ctx, a.ID, domain.UserID("nobody")); err != nil || revived {
		t.Fatalf("revive of missing row: revived=%v err=%v", revived, err)
	}

	if n, err := store.CountActiveRegistrations(ctx, a.ID); err != nil || n != 1 {
		t.Fatalf("CountActiveRegistrations: n=%d err=%v", n, err)
	}

	byUser, err := store.ListRegistrationsByUser(ctx, user)
	if err != nil || len(byUser) != 1 || byUser[0].ActivityID != a.ID {
		t.Fatalf("ListRegistrationsByUser: %#v err=%v", byUser, err)
	}
	byActivity, err := store.ListRegistrationsByActivity(ctx, a.ID)
	if err != nil || len(byActivity) != 1 || byActivity[0].UserID != user {
		t.Fatalf("ListRegistrationsByActivity: %#v err=%v", byActivity, err)
	}
}

func runTxContract(t *testing.T, ctx context.Context, store activitystoreport.Store) {
	t.Helper()

	a := seedActivity(1, 1, domain.StatusPublished)
	if err := store.CreateActivity(ctx, a); err != nil {
		t.Fatalf("CreateActivity: %v", err)
	}

	// An aborted transaction leaves no partial mutation behind.
	sentinel := errors.New("abort")
	err := store.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := store.ClaimSlot(ctx, a.ID)
		if err != nil || !claimed {
			return errors.New("claim inside tx failed")
		}
		if err := store.CreateRegistration(ctx, activitystoreport.Registration{
			ID:         domain.RegistrationID(uuid.NewString()),
			ActivityID: a.ID,
			UserID:     domain.UserID("student-tx"),
			CreatedAt:  time.Unix(7000, 0).UTC(),
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	got, err := store.GetActivity(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetActivity after rollback: %v", err)
	}
	if got.RemainingSlots != 1 {
		t.Fatalf("expected rollback to restore slot, got %d remaining", got.RemainingSlots)
	}
	if _, err := store.GetRegistration(ctx, a.ID, domain.UserID("student-tx")); !errors.Is(err, activitystoreport.ErrRegistrationNotFound) {
		t.Fatalf("expected registration rolled back, got %v", err)
	}

	// A committed transaction keeps both mutations.
	err = store.WithTx(ctx, func(ctx context.Context) error {
		if claimed, err := store.ClaimSlot(ctx, a.ID); err != nil || !claimed {
			return errors.New("claim inside tx failed")
		}
		return store.CreateRegistration(ctx, activitystoreport.Registration{
			ID:         domain.RegistrationID(uuid.NewString()),
			ActivityID: a.ID,
			UserID:     domain.UserID("student-tx"),
			CreatedAt:  time.Unix(7001, 0).UTC(),
		})
	})
	if err != nil {
		t.Fatalf("WithTx commit: %v", err)
	}
	if got, _ := store.GetActivity(ctx, a.ID); got.RemainingSlots != 0 {
		t.Fatalf("expected committed claim, got %d remaining", got.RemainingSlots)
	}
	if _, err := store.GetRegistration(ctx, a.ID, domain.UserID("student-tx")); err != nil {
		t.Fatalf("expected committed registration, got %v", err)
	}
}

func RunIdemStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	claim := idemstoreport.Claim{
		ActorID:     domain.UserID("student-1"),
		Action:      "register",
		Key:         "key-" + uuid.NewString(),
		Fingerprint: "activity-1",
	}

	res, err := store.Claim(ctx, claim)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if res.State != idemstoreport.StateNew {
		t.Fatalf("expected StateNew, got %v", res.State)
	}

	// A second claim before completion is in progress.
	res, err = store.Claim(ctx, claim)
	if err != nil {
		t.Fatalf("Claim again: %v", err)
	}
	if res.State != idemstoreport.StateInProgress {
		t.Fatalf("expected StateInProgress, got %v", res.State)
	}

	// Same key with a different fingerprint is key reuse.
	reuse := claim
	reuse.Fingerprint = "activity-2"
	res, err = store.Claim(ctx, reuse)
	if err != nil {
		t.Fatalf("Claim reuse: %v", err)
	}
	if res.State != idemstoreport.StateKeyReuse {
		t.Fatalf("expected StateKeyReuse, got %v", res.State)
	}

	// Completion makes later claims replay the stored response.
	stored := idemstoreport.Response{Status: 201, Body: []byte(`{"state":"active"}`)}
	if err := store.Complete(ctx, claim, stored); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	res, err = store.Claim(ctx, claim)
	if err != nil {
		t.Fatalf("Claim after complete: %v", err)
	}
	if res.State != idemstoreport.StateReplay {
		t.Fatalf("expected StateReplay, got %v", res.State)
	}
	if res.Response == nil || res.Response.Status != 201 || string(res.Response.Body) != `{"state":"active"}` {
		t.Fatalf("unexpected replay response: %#v", res.Response)
	}

	// Completion is write-once.
	if err := store.Complete(ctx, claim, idemstoreport.Response{Status: 500, Body: []byte(`boom`)}); err != nil {
		t.Fatalf("Complete overwrite: %v", err)
	}
	res, err = store.Claim(ctx, claim)
	if err != nil || res.State != idemstoreport.StateReplay {
		t.Fatalf("Claim after overwrite attempt: %#v err=%v", res, err)
	}
	if res.Response.Status != 201 {
		t.Fatalf("expected first response preserved, got status %d", res.Response.Status)
	}

	// Release discards an incomplete claim so the key can be reclaimed.
	abandoned := idemstoreport.Claim{
		ActorID:     domain.UserID("student-1"),
		Action:      "register",
		Key:         "key-" + uuid.NewString(),
		Fingerprint: "activity-1",
	}
	if res, err := store.Claim(ctx, abandoned); err != nil || res.State != idemstoreport.StateNew {
		t.Fatalf("Claim abandoned: %#v err=%v", res, err)
	}
	if err := store.Release(ctx, abandoned); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if res, err := store.Claim(ctx, abandoned); err != nil || res.State != idemstoreport.StateNew {
		t.Fatalf("expected released key to claim as new, got %#v err=%v", res, err)
	}

	// Release never discards a completed record.
	if err := store.Release(ctx, claim); err != nil {
		t.Fatalf("Release completed: %v", err)
	}
	if res, err := store.Claim(ctx, claim); err != nil || res.State != idemstoreport.StateReplay {
		t.Fatalf("expected completed record preserved, got %#v err=%v", res, err)
	}
}
