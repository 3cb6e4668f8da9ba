package activitystore

import (
	"context"
	"time"

	"github.com/campushub/activity-registration-api/internal/domain"
)

// Activity is the persistence shape used by the activity store.
// It is not an HTTP DTO.
type Activity struct {
	ID domain.ActivityID

	Title       string
	Description string
	Location    string

	// Date is when the activity takes place; registrations and
	// cancellations are rejected once it has passed.
	Date time.Time
	// Deadline is the registration cutoff, strictly before Date.
	Deadline time.Time

	Capacity       int
	RemainingSlots int

	Status domain.Status

	CreatedBy domain.UserID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Registration is one user's (possibly canceled) claim on an activity.
type Registration struct {
	ID         domain.RegistrationID
	ActivityID domain.ActivityID
	UserID     domain.UserID

	CreatedAt  time.Time
	CanceledAt *time.Time
}

// Active reports whether the registration currently holds a slot.
func (r Registration) Active() bool { return r.CanceledAt == nil }

// Store persists activities and registrations.
//
// It owns both record kinds in a single port because Register/Cancel must
// mutate an activity row and a registration row atomically: WithTx scopes
// all operations invoked through its callback context to one store
// transaction. Implementations backed by a shared database must make the
// conditional ClaimSlot/ReleaseSlot updates visible across processes; an
// in-process lock is not a substitute.
type Store interface {
	// WithTx runs fn inside one transaction. If ctx already carries a
	// transaction, fn joins it. fn returning an error aborts the whole
	// transaction; no partial mutation survives.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateActivity(ctx context.Context, a Activity) error
	SaveActivity(ctx context.Context, a Activity) error
	GetActivity(ctx context.Context, id domain.ActivityID) (Activity, error)
	ListActivities(ctx context.Context) ([]Activity, error)

	// ClaimSlot atomically decrements the remaining-slot count, guarded by
	// "remaining_slots > 0 AND status = published". claimed=false means the
	// guard did not hold (another request took the last slot, or the
	// activity is not reservable); the caller must treat it as FULL, not
	// retry.
	ClaimSlot(ctx context.Context, id domain.ActivityID) (claimed bool, err error)

	// ReleaseSlot atomically increments the remaining-slot count, guarded
	// by "remaining_slots < capacity". released=false signals a
	// double-release attempt.
	ReleaseSlot(ctx context.Context, id domain.ActivityID) (released bool, err error)

	// SetStatus overwrites the activity status. Legality of the transition
	// is the caller's concern (domain.NextStatus / DeriveCapacityStatus).
	SetStatus(ctx context.Context, id domain.ActivityID, to domain.Status) error

	// GetRegistration returns the row for (activity, user) whether or not
	// it is canceled. ErrRegistrationNotFound if none exists.
	GetRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (Registration, error)

	CreateRegistration(ctx context.Context, r Registration) error

	// ReviveRegistration clears canceled_at, guarded by "canceled_at IS
	// NOT NULL". revived=false means the row is already active (a
	// concurrent request revived it first) or does not exist.
	ReviveRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (revived bool, err error)

	// CancelRegistration stamps canceled_at on the active row.
	CancelRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID, at time.Time) error

	CountActiveRegistrations(ctx context.Context, activityID domain.ActivityID) (int, error)

	// ListRegistrationsByUser returns the user's registrations (active and
	// canceled) ordered by activity date ascending.
	ListRegistrationsByUser(ctx context.Context, userID domain.UserID) ([]Registration, error)

	// ListRegistrationsByActivity returns all registrations for an
	// activity ordered by creation time ascending.
	ListRegistrationsByActivity(ctx context.Context, activityID domain.ActivityID) ([]Registration, error)
}
