package activitystore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/campushub/activity-registration-api/internal/adapters/postgres"
	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

// Store is a Postgres implementation of activitystore.Store. The
// conditional slot updates rely on the database's row-level transaction
// plus the affected-row count, so the no-oversell guarantee holds across
// processes.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return postgres.WithTx(ctx, s.pool, fn)
}

func (s *Store) q(ctx context.Context) postgres.Querier {
	return postgres.QuerierFromContext(ctx, s.pool)
}

const activityColumns = `id, title, description, location, date, deadline, capacity, remaining_slots, status, created_by, created_at, updated_at`

func (s *Store) CreateActivity(ctx context.Context, a activitystore.Activity) error {
	id, err := uuid.Parse(string(a.ID))
	if err != nil {
		return fmt.Errorf("invalid activity id: %w", err)
	}
	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO activities (`+activityColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		id,
		a.Title,
		a.Description,
		a.Location,
		a.Date.UTC(),
		a.Deadline.UTC(),
		a.Capacity,
		a.RemainingSlots,
		string(a.Status),
		string(a.CreatedBy),
		a.CreatedAt.UTC(),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return activitystore.ErrActivityExists
		}
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

func (s *Store) SaveActivity(ctx context.Context, a activitystore.Activity) error {
	id, err := uuid.Parse(string(a.ID))
	if err != nil {
		return activitystore.ErrActivityNotFound
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE activities
		SET title = $2,
		    description = $3,
		    location = $4,
		    date = $5,
		    deadline = $6,
		    capacity = $7,
		    remaining_slots = $8,
		    status = $9,
		    updated_at = $10
		WHERE id = $1
	`,
		id,
		a.Title,
		a.Description,
		a.Location,
		a.Date.UTC(),
		a.Deadline.UTC(),
		a.Capacity,
		a.RemainingSlots,
		string(a.Status),
		a.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return activitystore.ErrActivityNotFound
	}
	return nil
}

func (s *Store) GetActivity(ctx context.Context, id domain.ActivityID) (activitystore.Activity, error) {
	aid, err := uuid.Parse(string(id))
	if err != nil {
		return activitystore.Activity{}, activitystore.ErrActivityNotFound
	}
	row := s.q(ctx).QueryRow(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE id = $1
	`, aid)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activitystore.Activity{}, activitystore.ErrActivityNotFound
		}
		return activitystore.Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return a, nil
}

func (s *Store) ListActivities(ctx context.Context) ([]activitystore.Activity, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		ORDER BY date ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	out := make([]activitystore.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ClaimSlot(ctx context.Context, id domain.ActivityID) (bool, error) {
	aid, err := uuid.Parse(string(id))
	if err != nil {
		return false, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE activities
		SET remaining_slots = remaining_slots - 1
		WHERE id = $1
		  AND remaining_slots > 0
		  AND status = 'published'
	`, aid)
	if err != nil {
		return false, postgres.MarkTransient(fmt.Errorf("claim slot: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseSlot(ctx context.Context, id domain.ActivityID) (bool, error) {
	aid, err := uuid.Parse(string(id))
	if err != nil {
		return false, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE activities
		SET remaining_slots = remaining_slots + 1
		WHERE id = $1
		  AND remaining_slots < capacity
	`, aid)
	if err != nil {
		return false, postgres.MarkTransient(fmt.Errorf("release slot: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetStatus(ctx context.Context, id domain.ActivityID, to domain.Status) error {
	aid, err := uuid.Parse(string(id))
	if err != nil {
		return activitystore.ErrActivityNotFound
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE activities SET status = $2 WHERE id = $1
	`, aid, string(to))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return activitystore.ErrActivityNotFound
	}
	return nil
}

func (s *Store) GetRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (activitystore.Registration, error) {
	aid, err := uuid.Parse(string(activityID))
	if err != nil {
		return activitystore.Registration{}, activitystore.ErrRegistrationNotFound
	}
	row := s.q(ctx).QueryRow(ctx, `
		SELECT id, activity_id, user_id, created_at, canceled_at
		FROM registrations
		WHERE activity_id = $1 AND user_id = $2
	`, aid, string(userID))
	r, err := scanRegistration(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activitystore.Registration{}, activitystore.ErrRegistrationNotFound
		}
		return activitystore.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return r, nil
}

func (s *Store) CreateRegistration(ctx context.Context, r activitystore.Registration) error {
	rid, err := uuid.Parse(string(r.ID))
	if err != nil {
		return fmt.Errorf("invalid registration id: %w", err)
	}
	aid, err := uuid.Parse(string(r.ActivityID))
	if err != nil {
		return fmt.Errorf("invalid activity id: %w", err)
	}
	_, err = s.q(ctx).Exec(ctx, `
		INSERT INTO registrations (id, activity_id, user_id, created_at, canceled_at)
		VALUES ($1,$2,$3,$4,$5)
	`, rid, aid, string(r.UserID), r.CreatedAt.UTC(), r.CanceledAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return activitystore.ErrRegistrationExists
		}
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func (s *Store) ReviveRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID) (bool, error) {
	aid, err := uuid.Parse(string(activityID))
	if err != nil {
		return false, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE registrations SET canceled_at = NULL
		WHERE activity_id = $1 AND user_id = $2 AND canceled_at IS NOT NULL
	`, aid, string(userID))
	if err != nil {
		return false, fmt.Errorf("revive registration: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CancelRegistration(ctx context.Context, activityID domain.ActivityID, userID domain.UserID, at time.Time) error {
	aid, err := uuid.Parse(string(activityID))
	if err != nil {
		return activitystore.ErrRegistrationNotFound
	}
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE registrations SET canceled_at = $3
		WHERE activity_id = $1 AND user_id = $2 AND canceled_at IS NULL
	`, aid, string(userID), at.UTC())
	if err != nil {
		return fmt.Errorf("cancel registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return activitystore.ErrRegistrationNotFound
	}
	return nil
}

func (s *Store) CountActiveRegistrations(ctx context.Context, activityID domain.ActivityID) (int, error) {
	aid, err := uuid.Parse(string(activityID))
	if err != nil {
		return 0, nil
	}
	var n int
	err = s.q(ctx).QueryRow(ctx, `
		SELECT count(*) FROM registrations
		WHERE activity_id = $1 AND canceled_at IS NULL
	`, aid).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return n, nil
}

func (s *Store) ListRegistrationsByUser(ctx context.Context, userID domain.UserID) ([]activitystore.Registration, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT r.id, r.activity_id, r.user_id, r.created_at, r.canceled_at
		FROM registrations r
		JOIN activities a ON a.id = r.activity_id
		WHERE r.user_id = $1
		ORDER BY a.date ASC, r.activity_id ASC
	`, string(userID))
	if err != nil {
		return nil, fmt.Errorf("list registrations by user: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func (s *Store) ListRegistrationsByActivity(ctx context.Context, activityID domain.ActivityID) ([]activitystore.Registration, error) {
	aid, err := uuid.Parse(string(activityID))
	if err != nil {
		return []activitystore.Registration{}, nil
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, activity_id, user_id, created_at, canceled_at
		FROM registrations
		WHERE activity_id = $1
		ORDER BY created_at ASC, user_id ASC
	`, aid)
	if err != nil {
		return nil, fmt.Errorf("list registrations by activity: %w", err)
	}
	defer rows.Close()
	return collectRegistrations(rows)
}

func collectRegistrations(rows pgx.Rows) ([]activitystore.Registration, error) {
	out := make([]activitystore.Registration, 0)
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanActivity(row pgx.Row) (activitystore.Activity, error) {
	var (
		a         activitystore.Activity
		id        uuid.UUID
		status    string
		createdBy string
	)
	if err := row.Scan(
		&id,
		&a.Title,
		&a.Description,
		&a.Location,
		&a.Date,
		&a.Deadline,
		&a.Capacity,
		&a.RemainingSlots,
		&status,
		&createdBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return activitystore.Activity{}, err
	}
	a.ID = domain.ActivityID(id.String())
	a.Status = domain.Status(status)
	a.CreatedBy = domain.UserID(createdBy)
	a.Date = a.Date.UTC()
	a.Deadline = a.Deadline.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanRegistration(row pgx.Row) (activitystore.Registration, error) {
	var (
		r          activitystore.Registration
		id         uuid.UUID
		activityID uuid.UUID
		userID     string
		canceledAt *time.Time
	)
	if err := row.Scan(&id, &activityID, &userID, &r.CreatedAt, &canceledAt); err != nil {
		return activitystore.Registration{}, err
	}
	r.ID = domain.RegistrationID(id.String())
	r.ActivityID = domain.ActivityID(activityID.String())
	r.UserID = domain.UserID(userID)
	r.CreatedAt = r.CreatedAt.UTC()
	if canceledAt != nil {
		t := canceledAt.UTC()
		r.CanceledAt = &t
	}
	return r, nil
}
