package registrations

import (
	"time"

	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

// ReservationState says what a Register/Cancel call did for the caller.
type ReservationState string

const (
	StateActive          ReservationState = "active"
	StateAlreadyActive   ReservationState = "already_active"
	StateCanceled        ReservationState = "canceled"
	StateAlreadyCanceled ReservationState = "already_canceled"
)

// ActivitySnapshot is the activity read model returned with every result.
// JSON tags matter: results are stored verbatim by the idempotency ledger
// and replayed byte-identically.
type ActivitySnapshot struct {
	ID             domain.ActivityID `json:"id"`
	Title          string            `json:"title"`
	Date           time.Time         `json:"date"`
	Deadline       time.Time         `json:"deadline"`
	Capacity       int               `json:"capacity"`
	RemainingSlots int               `json:"remaining_slots"`
	Status         domain.Status     `json:"status"`
}

// RegistrationView is the registration read model.
type RegistrationView struct {
	ID         domain.RegistrationID `json:"id"`
	ActivityID domain.ActivityID     `json:"activity_id"`
	UserID     domain.UserID         `json:"user_id"`
	CreatedAt  time.Time             `json:"created_at"`
	CanceledAt *time.Time            `json:"canceled_at,omitempty"`
}

// Result is the outcome of a committed Register or Cancel call.
type Result struct {
	State        ReservationState  `json:"reservation_state"`
	Activity     ActivitySnapshot  `json:"activity"`
	Registration *RegistrationView `json:"registration,omitempty"`
}

// ActivityTimeStatus classifies an activity relative to now.
type ActivityTimeStatus string

const (
	TimeUpcoming ActivityTimeStatus = "upcoming"
	TimeEnded    ActivityTimeStatus = "ended"
)

// MyRegistration is one row of a user's registration history.
type MyRegistration struct {
	Activity           ActivitySnapshot   `json:"activity"`
	RegistrationStatus ReservationState   `json:"registration_status"`
	ActivityTimeStatus ActivityTimeStatus `json:"activity_time_status"`
}

func snapshotOf(a activitystore.Activity) ActivitySnapshot {
	return ActivitySnapshot{
		ID:             a.ID,
		Title:          a.Title,
		Date:           a.Date,
		Deadline:       a.Deadline,
		Capacity:       a.Capacity,
		RemainingSlots: a.RemainingSlots,
		Status:         a.Status,
	}
}

func viewOf(r activitystore.Registration) *RegistrationView {
	v := &RegistrationView{
		ID:         r.ID,
		ActivityID: r.ActivityID,
		UserID:     r.UserID,
		CreatedAt:  r.CreatedAt,
	}
	if r.CanceledAt != nil {
		t := *r.CanceledAt
		v.CanceledAt = &t
	}
	return v
}
