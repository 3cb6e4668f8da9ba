package activitystore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

type regKey struct {
	activityID domain.ActivityID
	userID     domain.UserID
}

type txToken struct{}

// Store is an in-memory implementation of activitystore.Store.
// It is safe for concurrent use: WithTx serializes transactions under one
// mutex and restores a snapshot when the callback fails, so a failed
// transaction leaves no partial mutation, matching the SQL adapters.
type Store struct {
	mu            sync.Mutex
	activities    map[domain.ActivityID]activitystore.Activity
	registrations map[regKey]activitystore.Registration
}

func NewStore() *Store {
	return &Store{
		activities:    make(map[domain.ActivityID]activitystore.Activity),
		registrations: make(map[regKey]activitystore.Registration),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txToken{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapActivities := make(map[domain.ActivityID]activitystore.Activity, len(s.activities))
	for k, v := range s.activities {
		snapActivities[k] = v
	}
	snapRegistrations := make(map[regKey]activitystore.Registration, len(s.registrations))
	for k, v := range s.registrations {
		snapRegistrations[k] = v
	}

	if err := fn(context.WithValue(ctx, txToken{}, struct{}{})); err != nil {
		s.activities = snapActivities
		s.registrations = snapRegistrations
		return err
	}
	return nil
}

// enter locks the store unless ctx already runs inside WithTx.
func (s *Store) enter(ctx context.Context) func() {
	if ctx.Value(txToken{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) CreateActivity(ctx context.Context, a activitystore.Activity) error {
	defer s.enter(ctx)()
	if _, ok := s.activities[a.ID]; ok {
		return activitystore.ErrActivityExists
	}
	s.activities[a.ID] = a
	return nil
}

func (s *Store) SaveActivity(ctx context.Context, a activitystore.Activity) error {
	defer s.enter(ctx)()
	if _, ok := s.activities[a.ID]; !ok {
		return activitystore.ErrActivityNotFound
	}
	s.activities[a.ID] = a
	return nil
}

func (s *Store) GetActivity(ctx context.Context, id domain.ActivityID) (activitystore.Activity, error) {
	defer s.enter(ctx)()
	a, ok := s.activities[id]
	if !ok {
		return activitystore.Activity{}, activitystore.ErrActivityNotFound
	}
	return a, nil
}

func (s *Store) ListActivities(ctx context.Context) ([]activitystore.Activity, error) {
	defer s.enter(ctx)()
	out := make([]activitystore.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *Store) ClaimSlot(ctx context.Context, id domain.ActivityID) (bool, error) {
	defer s.enter(ctx)()
	a, ok := s.activities[id]
	if !ok || a.RemainingSlots <= 0 || a.Status != domain.StatusPublished {
		return false, nil
	}
	a.RemainingSlots--
	s.activities[id] = a
	return true, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, id domain.ActivityID) (bool, error) {
	defer s.enter(ctx)()
	a, ok := s.activities[id]
	if !ok || a.RemainingSlots >= a.Capacity {
		return false, nil
	}
	a.RemainingSlots++
	s.activities[id] = a
	return true, nil
}

func (s *Store) SetStatus(ctx context.Context, id domain.ActivityID, to domain.Status) error {
	defer s.enter(ctx)()
	a, ok := s.activities[id]
	if !ok {
		return activitystore.ErrActivityNotFound
	}
	a.Status = to
	s.activities[id] = a
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (activitystore.Registration, error) {
	defer s.enter(ctx)()
	r, ok := s.registrations[regKey{activityID: activityID, userID: userID}]
	if !ok {
		return activitystore.Registration{}, activitystore.ErrRegistrationNotFound
	}
	return cloneRegistration(r), nil
}

func (s *Store) CreateRegistration(ctx context.Context, r activitystore.Registration) error {
	defer s.enter(ctx)()
	k := regKey{activityID: r.ActivityID, userID: r.UserID}
	if _, ok := s.registrations[k]; ok {
		return activitystore.ErrRegistrationExists
	}
	s.registrations[k] = cloneRegistration(r)
	return nil
}

func (s *Store) ReviveRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (bool, error) {
	defer s.enter(ctx)()
	k := regKey{activityID: activityID, userID: userID}
	r, ok := s.registrations[k]
	if !ok || r.CanceledAt == nil {
		return false, nil
	}
	r.CanceledAt = nil
	s.registrations[k] = r
	return true, nil
}

func (s *Store) CancelRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID, at time.Time) error {
	defer s.enter(ctx)()
	k := regKey{activityID: activityID, userID: userID}
	r, ok := s.registrations[k]
	if !ok {
		return activitystore.ErrRegistrationNotFound
	}
	t := at
	r.CanceledAt = &t
	s.registrations[k] = r
	return nil
}

func (s *Store) CountActiveRegistrations(ctx context.Context, activityID domain.ActivityID) (int, error) {
	defer s.enter(ctx)()
	n := 0
	for k, r := range s.registrations {
		if k.activityID == activityID && r.CanceledAt == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListRegistrationsByUser(ctx context.Context, userID domain.UserID) ([]activitystore.Registration, error) {
	defer s.enter(ctx)()
	out := make([]activitystore.Registration, 0)
	for k, r := range s.registrations {
		if k.userID == userID {
			out = append(out, cloneRegistration(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai := s.activities[out[i].ActivityID]
		aj := s.activities[out[j].ActivityID]
		if ai.Date.Equal(aj.Date) {
			return out[i].ActivityID < out[j].ActivityID
		}
		return ai.Date.Before(aj.Date)
	})
	return out, nil
}

func (s *Store) ListRegistrationsByActivity(ctx context.Context, activityID domain.ActivityID) ([]activitystore.Registration, error) {
	defer s.enter(ctx)()
	out := make([]activitystore.Registration, 0)
	for k, r := range s.registrations {
		if k.activityID == activityID {
			out = append(out, cloneRegistration(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneRegistration(r activitystore.Registration) activitystore.Registration {
	if r.CanceledAt != nil {
		t := *r.CanceledAt
		r.CanceledAt = &t
	}
	return r
}
