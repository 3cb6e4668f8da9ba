package activities

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campushub/activity-registration-api/internal/app/apperr"
	"github.com/campushub/activity-registration-api/internal/app/idempotency"
	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
	"github.com/campushub/activity-registration-api/internal/ports/out/audit"
	"github.com/campushub/activity-registration-api/internal/ports/out/clock"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

// Service covers owner-side activity management: create, edit (including
// the guarded capacity reduction), and state-machine driven status changes.
type Service struct {
	store activitystore.Store
	idem  idemstore.Store
	audit audit.Sink
	clock clock.Clock

	newActivityID func() domain.ActivityID
}

func NewService(store activitystore.Store, idem idemstore.Store, sink audit.Sink, clk clock.Clock) *Service {
	return &Service{
		store: store,
		idem:  idem,
		audit: sink,
		clock: clk,
		newActivityID: func() domain.ActivityID {
			return domain.ActivityID(uuid.NewString())
		},
	}
}

// SetNewActivityIDForTest overrides activity ID generation for
// deterministic tests. It should not be used in production code.
func (s *Service) SetNewActivityIDForTest(fn func() domain.ActivityID) {
	if fn != nil {
		s.newActivityID = fn
	}
}

type CreateActivityInput struct {
	Title       string
	Description string
	Location    string
	Date        time.Time
	Deadline    time.Time
	Capacity    int
	// Status may only be draft or published at creation time.
	Status domain.Status
}

type UpdateActivityInput struct {
	Title       string
	Description string
	Location    string
	Date        time.Time
	Deadline    time.Time
	Capacity    int
}

func (s *Service) Create(ctx context.Context, caller domain.UserID, in CreateActivityInput) (activitystore.Activity, error) {
	if err := validateFields(in.Title, in.Date, in.Deadline, in.Capacity); err != nil {
		return activitystore.Activity{}, err
	}
	switch in.Status {
	case domain.StatusDraft, domain.StatusPublished:
	default:
		return activitystore.Activity{}, &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeValidationError,
			Message: "initial status must be draft or published",
			Details: map[string]any{"status": string(in.Status)},
		}
	}

	now := s.clock.Now()
	a := activitystore.Activity{
		ID:             s.newActivityID(),
		Title:          strings.TrimSpace(in.Title),
		Description:    in.Description,
		Location:       in.Location,
		Date:           in.Date.UTC(),
		Deadline:       in.Deadline.UTC(),
		Capacity:       in.Capacity,
		RemainingSlots: in.Capacity,
		Status:         in.Status,
		CreatedBy:      caller,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateActivity(ctx, a); err != nil {
		if errors.Is(err, activitystore.ErrActivityExists) {
			return activitystore.Activity{}, &apperr.Error{Status: http.StatusConflict, Code: apperr.CodeConflict, Message: "activity id conflict"}
		}
		return activitystore.Activity{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "ACTIVITY_CREATE",
		ActorID:    caller,
		EntityType: "activity",
		EntityID:   string(a.ID),
		Metadata:   map[string]any{"status": string(a.Status)},
		At:         now,
	})
	return a, nil
}

// Update edits the activity fields. Lowering capacity below the active
// registration count is rejected rather than silently truncating; an
// accepted change recomputes remaining slots and re-derives the
// published/full pair.
func (s *Service) Update(ctx context.Context, caller domain.UserID, activityID domain.ActivityID, in UpdateActivityInput) (activitystore.Activity, error) {
	if err := validateFields(in.Title, in.Date, in.Deadline, in.Capacity); err != nil {
		return activitystore.Activity{}, err
	}

	now := s.clock.Now()
	var out activitystore.Activity
	var fromStatus domain.Status

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.getOwned(ctx, caller, activityID)
		if err != nil {
			return err
		}
		fromStatus = a.Status

		activeCount, err := s.store.CountActiveRegistrations(ctx, activityID)
		if err != nil {
			return err
		}
		if in.Capacity < activeCount {
			return &apperr.Error{
				Status:  http.StatusUnprocessableEntity,
				Code:    apperr.CodeValidationError,
				Message: "capacity cannot be lower than the active registration count",
				Details: map[string]any{"active_count": activeCount},
			}
		}

		a.Title = strings.TrimSpace(in.Title)
		a.Description = in.Description
		a.Location = in.Location
		a.Date = in.Date.UTC()
		a.Deadline = in.Deadline.UTC()
		a.Capacity = in.Capacity
		a.RemainingSlots = in.Capacity - activeCount
		a.Status = domain.DeriveCapacityStatus(a.Status, a.RemainingSlots)
		a.UpdatedAt = now

		if err := s.store.SaveActivity(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return activitystore.Activity{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "ACTIVITY_UPDATE",
		ActorID:    caller,
		EntityType: "activity",
		EntityID:   string(activityID),
		Metadata:   map[string]any{"from_status": string(fromStatus), "to_status": string(out.Status)},
		At:         now,
	})
	return out, nil
}

// ChangeStatus applies a lifecycle action through the state machine. An
// action with no legal transition from the current status is a conflict.
// Publishing recomputes remaining slots from the active registration count
// and may land directly on full.
func (s *Service) ChangeStatus(ctx context.Context, caller domain.UserID, activityID domain.ActivityID, action domain.StatusAction, idempotencyKey string) (activitystore.Activity, error) {
	return idempotency.Do(ctx, s.idem, idemstore.Claim{
		ActorID:     caller,
		Action:      "change_status",
		Key:         idempotencyKey,
		Fingerprint: string(activityID) + ":" + string(action),
	}, func(ctx context.Context) (activitystore.Activity, error) {
		return s.changeStatusOnce(ctx, caller, activityID, action)
	})
}

func (s *Service) changeStatusOnce(ctx context.Context, caller domain.UserID, activityID domain.ActivityID, action domain.StatusAction) (activitystore.Activity, error) {
	now := s.clock.Now()
	var out activitystore.Activity
	var fromStatus domain.Status

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.getOwned(ctx, caller, activityID)
		if err != nil {
			return err
		}
		fromStatus = a.Status

		next, ok := domain.NextStatus(a.Status, action)
		if !ok {
			return &apperr.Error{
				Status:  http.StatusConflict,
				Code:    apperr.CodeStateInvalid,
				Message: "status change not allowed from the current status",
				Details: map[string]any{"from": string(a.Status), "action": string(action)},
			}
		}

		if next == domain.StatusPublished {
			activeCount, err := s.store.CountActiveRegistrations(ctx, activityID)
			if err != nil {
				return err
			}
			a.RemainingSlots = a.Capacity - activeCount
			next = domain.DeriveCapacityStatus(next, a.RemainingSlots)
		}

		a.Status = next
		a.UpdatedAt = now
		if err := s.store.SaveActivity(ctx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	if err != nil {
		return activitystore.Activity{}, err
	}

	s.audit.Record(ctx, audit.Entry{
		Action:     "ACTIVITY_STATUS_CHANGE",
		ActorID:    caller,
		EntityType: "activity",
		EntityID:   string(activityID),
		Metadata: map[string]any{
			"from_status":      string(fromStatus),
			"to_status":        string(out.Status),
			"requested_action": string(action),
		},
		At: now,
	})
	return out, nil
}

func (s *Service) Get(ctx context.Context, activityID domain.ActivityID) (activitystore.Activity, error) {
	a, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, activitystore.ErrActivityNotFound) {
			return activitystore.Activity{}, &apperr.Error{Status: http.StatusNotFound, Code: apperr.CodeNotFound, Message: "activity not found"}
		}
		return activitystore.Activity{}, err
	}
	return a, nil
}

func (s *Service) List(ctx context.Context) ([]activitystore.Activity, error) {
	return s.store.ListActivities(ctx)
}

// Roster lists an activity's registrations for its owner.
func (s *Service) Roster(ctx context.Context, caller domain.UserID, activityID domain.ActivityID) ([]activitystore.Registration, error) {
	if _, err := s.getOwned(ctx, caller, activityID); err != nil {
		return nil, err
	}
	return s.store.ListRegistrationsByActivity(ctx, activityID)
}

// getOwned fetches the activity and hides it from non-owners: mutating a
// foreign activity reports not-found rather than leaking its existence.
func (s *Service) getOwned(ctx context.Context, caller domain.UserID, activityID domain.ActivityID) (activitystore.Activity, error) {
	a, err := s.store.GetActivity(ctx, activityID)
	if err != nil {
		if errors.Is(err, activitystore.ErrActivityNotFound) {
			return activitystore.Activity{}, &apperr.Error{Status: http.StatusNotFound, Code: apperr.CodeNotFound, Message: "activity not found"}
		}
		return activitystore.Activity{}, err
	}
	if a.CreatedBy != caller {
		return activitystore.Activity{}, &apperr.Error{Status: http.StatusNotFound, Code: apperr.CodeNotFound, Message: "activity not found"}
	}
	return a, nil
}

func validateFields(title string, date, deadline time.Time, capacity int) error {
	if strings.TrimSpace(title) == "" {
		return &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeValidationError,
			Message: "invalid title",
			Details: map[string]any{"title": "must be non-empty"},
		}
	}
	if capacity < 1 {
		return &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeValidationError,
			Message: "invalid capacity",
			Details: map[string]any{"capacity": "must be >= 1"},
		}
	}
	if !date.After(deadline) {
		return &apperr.Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    apperr.CodeValidationError,
			Message: "activity date must be after the registration deadline",
			Details: map[string]any{"deadline": "must be before date"},
		}
	}
	return nil
}
