package registrations

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/activity-registration-api/internal/app/apperr"
	"github.com/campushub/activity-registration-api/internal/app/idempotency"
	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/platform/retry"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
	"github.com/campushub/activity-registration-api/internal/ports/out/audit"
	"github.com/campushub/activity-registration-api/internal/ports/out/clock"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

const (
	actionRegister = "register"
	actionCancel   = "cancel"
)

// Service is the transactional reservation engine. Register and Cancel run
// their capacity check, conditional slot update, registration write and
// status re-derivation inside one store transaction; the conditional
// update's affected-row check is the sole concurrency guard.
type Service struct {
	store activitystore.Store
	idem  idemstore.Store
	audit audit.Sink
	clock clock.Clock
	retry retry.Policy

	newRegistrationID func() domain.RegistrationID
}

func NewService(store activitystore.Store, idem idemstore.Store, sink audit.Sink, clk clock.Clock) *Service {
	return &Service{
		store: store,
		idem:  idem,
		audit: sink,
		clock: clk,
		retry: retry.DefaultPolicy(),
		newRegistrationID: func() domain.RegistrationID {
			return domain.RegistrationID(uuid.NewString())
		},
	}
}

// SetRetryPolicy overrides the transient-failure retry bounds.
func (s *Service) SetRetryPolicy(p retry.Policy) { s.retry = p }

// SetNewRegistrationIDForTest overrides registration ID generation for
// deterministic tests. It should not be used in production code.
func (s *Service) SetNewRegistrationIDForTest(fn func() domain.RegistrationID) {
	if fn != nil {
		s.newRegistrationID = fn
	}
}

// Register claims one slot on the activity for the caller. With a
// non-empty idempotencyKey the whole operation is wrapped in the replay
// ledger; retries with the same key return the stored result verbatim.
func (s *Service) Register(ctx context.Context, userID domain.UserID, activityID domain.ActivityID, idempotencyKey string) (Result, error) {
	return idempotency.Do(ctx, s.idem, idemstore.Claim{
		ActorID:     userID,
		Action:      actionRegister,
		Key:         idempotencyKey,
		Fingerprint: string(activityID),
	}, func(ctx context.Context) (Result, error) {
		return s.registerOnce(ctx, userID, activityID)
	})
}

// Cancel releases the caller's slot on the activity. Idempotent: canceling
// without an active registration reports already_canceled and mutates
// nothing.
func (s *Service) Cancel(ctx context.Context, userID domain.UserID, activityID domain.ActivityID, idempotencyKey string) (Result, error) {
	return idempotency.Do(ctx, s.idem, idemstore.Claim{
		ActorID:     userID,
		Action:      actionCancel,
		Key:         idempotencyKey,
		Fingerprint: string(activityID),
	}, func(ctx context.Context) (Result, error) {
		return s.cancelOnce(ctx, userID, activityID)
	})
}

func (s *Service) registerOnce(ctx context.Context, userID domain.UserID, activityID domain.ActivityID) (Result, error) {
	now := s.clock.Now()
	var out Result

	err := retry.Do(ctx, s.retry, func() error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			act, err := s.store.GetActivity(ctx, activityID)
			if err != nil {
				if errors.Is(err, activitystore.ErrActivityNotFound) {
					return &apperr.Error{Status: http.StatusNotFound, Code: apperr.CodeNotFound, Message: "activity not found"}
				}
				return err
			}

			// Check order is deliberate and deterministic:
			// time gates, then state conflict, then capacity.
			if err := registerGate(act, now); err != nil {
				return err
			}

			existing, err := s.store.GetRegistration(ctx, activityID, userID)
			found := err == nil
			if err != nil && !errors.Is(err, activitystore.ErrRegistrationNotFound) {
				return err
			}
			if found && existing.Active() {
				out = Result{State: StateAlreadyActive, Activity: snapshotOf(act), Registration: viewOf(existing)}
				return nil
			}

			claimed, err := s.store.ClaimSlot(ctx, activityID)
			if err != nil {
				return err
			}
			if !claimed {
				// A concurrent request won the last slot between our read
				// and the conditional decrement.
				return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeFull, Message: "no remaining slots"}
			}

			var reg activitystore.Registration
			if found {
				revived, err := s.store.ReviveRegistration(ctx, activityID, userID)
				if err != nil {
					return err
				}
				if !revived {
					// A concurrent request revived the row after our read.
					// Rerun; the fresh read answers already_active.
					return retry.Transient(activitystore.ErrRegistrationExists)
				}
				reg = existing
				reg.CanceledAt = nil
			} else {
				reg = activitystore.Registration{
					ID:         s.newRegistrationID(),
					ActivityID: activityID,
					UserID:     userID,
					CreatedAt:  now,
				}
				if err := s.store.CreateRegistration(ctx, reg); err != nil {
					if errors.Is(err, activitystore.ErrRegistrationExists) {
						// A concurrent request for the same user inserted
						// the row after our read. Rerun; the fresh read
						// answers already_active.
						return retry.Transient(err)
					}
					return err
				}
			}

			act, err = s.rederiveStatus(ctx, activityID)
			if err != nil {
				return err
			}

			out = Result{State: StateActive, Activity: snapshotOf(act), Registration: viewOf(reg)}
			return nil
		})
	})
	if err != nil {
		return Result{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "REGISTER",
		ActorID:    userID,
		EntityType: "activity",
		EntityID:   string(activityID),
		Metadata:   map[string]any{"result": string(out.State)},
		At:         now,
	})
	return out, nil
}

func (s *Service) cancelOnce(ctx context.Context, userID domain.UserID, activityID domain.ActivityID) (Result, error) {
	now := s.clock.Now()
	var out Result

	err := retry.Do(ctx, s.retry, func() error {
		return s.store.WithTx(ctx, func(ctx context.Context) error {
			act, err := s.store.GetActivity(ctx, activityID)
			if err != nil {
				if errors.Is(err, activitystore.ErrActivityNotFound) {
					return &apperr.Error{Status: http.StatusNotFound, Code: apperr.CodeNotFound, Message: "activity not found"}
				}
				return err
			}

			if err := cancelGate(act, now); err != nil {
				return err
			}

			existing, err := s.store.GetRegistration(ctx, activityID, userID)
			if err != nil && !errors.Is(err, activitystore.ErrRegistrationNotFound) {
				return err
			}
			if err != nil || !existing.Active() {
				out = Result{State: StateAlreadyCanceled, Activity: snapshotOf(act)}
				if err == nil {
					out.Registration = viewOf(existing)
				}
				return nil
			}

			released, err := s.store.ReleaseSlot(ctx, activityID)
			if err != nil {
				return err
			}
			if !released {
				// Zero affected rows with an active registration in hand
				// means either a concurrent cancel released the slot after
				// our read, or the counter is out of step with the
				// registration rows. Rerun: the former resolves to
				// already_canceled, the latter keeps failing until the
				// attempts run out.
				return retry.Transient(&apperr.Error{Status: http.StatusInternalServerError, Code: apperr.CodeInternal, Message: "unexpected remaining slots state"})
			}

			if err := s.store.CancelRegistration(ctx, activityID, userID, now); err != nil {
				return err
			}
			canceledAt := now
			existing.CanceledAt = &canceledAt

			act, err = s.rederiveStatus(ctx, activityID)
			if err != nil {
				return err
			}

			out = Result{State: StateCanceled, Activity: snapshotOf(act), Registration: viewOf(existing)}
			return nil
		})
	})
	if err != nil {
		s.auditCancelFailure(ctx, userID, activityID, err)
		return Result{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "CANCEL",
		ActorID:    userID,
		EntityType: "activity",
		EntityID:   string(activityID),
		Metadata:   map[string]any{"result": string(out.State)},
		At:         now,
	})
	return out, nil
}

// ListMine returns the caller's registration history, active and canceled,
// ordered by activity date.
func (s *Service) ListMine(ctx context.Context, userID domain.UserID) ([]MyRegistration, error) {
	now := s.clock.Now()
	regs, err := s.store.ListRegistrationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]MyRegistration, 0, len(regs))
	for _, r := range regs {
		act, err := s.store.GetActivity(ctx, r.ActivityID)
		if err != nil {
			return nil, err
		}
		item := MyRegistration{
			Activity:           snapshotOf(act),
			RegistrationStatus: StateCanceled,
			ActivityTimeStatus: TimeEnded,
		}
		if r.Active() {
			item.RegistrationStatus = StateActive
		}
		if now.Before(act.Date) {
			item.ActivityTimeStatus = TimeUpcoming
		}
		out = append(out, item)
	}
	return out, nil
}

// rederiveStatus re-reads the activity after a slot mutation and flips
// published<->full when the remaining-slot count demands it.
func (s *Service) rederiveStatus(ctx context.Context, activityID domain.ActivityID) (activitystore.Activity, error) {
	act, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		return activitystore.Activity{}, err
	}
	if next := domain.DeriveCapacityStatus(act.Status, act.RemainingSlots); next != act.Status {
		if err := s.store.SetStatus(ctx, activityID, next); err != nil {
			return activitystore.Activity{}, err
		}
		act.Status = next
	}
	return act, nil
}

func (s *Service) auditCancelFailure(ctx context.Context, userID domain.UserID, activityID domain.ActivityID, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		return
	}
	s.audit.Record(ctx, audit.Entry{
		Action:     "CANCEL",
		ActorID:    userID,
		EntityType: "activity",
		EntityID:   string(activityID),
		Metadata:   map[string]any{"error_status": ae.Status, "error_code": ae.Code},
		At:         s.clock.Now(),
	})
}

func registerGate(a activitystore.Activity, now time.Time) error {
	if !now.Before(a.Date) {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeEnded, Message: "activity already ended"}
	}
	if !now.Before(a.Deadline) {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeDeadlinePassed, Message: "registration deadline passed"}
	}
	if a.Status != domain.StatusPublished && a.Status != domain.StatusFull {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeStateInvalid, Message: "activity is not open for registration"}
	}
	if a.Status == domain.StatusFull || a.RemainingSlots <= 0 {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeFull, Message: "no remaining slots"}
	}
	return nil
}

func cancelGate(a activitystore.Activity, now time.Time) error {
	if !now.Before(a.Deadline) {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeDeadlinePassed, Message: "cancellation deadline passed"}
	}
	if !now.Before(a.Date) {
		return &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeEnded, Message: "activity already ended"}
	}
	return nil
}
