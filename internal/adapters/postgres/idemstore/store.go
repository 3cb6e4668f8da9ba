package idemstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/campushub/activity-registration-api/internal/adapters/postgres"
	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

// Store keeps idempotency records in Postgres. The claim is an insert
// guarded by the unique (actor_id, action, idempotency_key) index, so
// exactly one caller wins the first execution for a given key.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) q(ctx context.Context) postgres.Querier {
	return postgres.QuerierFromContext(ctx, s.pool)
}

func (s *Store) Claim(ctx context.Context, c idemstore.Claim) (idemstore.Result, error) {
	tag, err := s.q(ctx).Exec(ctx, `
		INSERT INTO idempotency_records (actor_id, action, idempotency_key, fingerprint, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (actor_id, action, idempotency_key) DO NOTHING
	`, string(c.ActorID), c.Action, c.Key, c.Fingerprint)
	if err != nil {
		return idemstore.Result{}, postgres.MarkTransient(fmt.Errorf("claim idempotency key: %w", err))
	}
	if tag.RowsAffected() == 1 {
		return idemstore.Result{State: idemstore.StateNew}, nil
	}

	var (
		fingerprint string
		status      *int
		body        []byte
	)
	err = s.q(ctx).QueryRow(ctx, `
		SELECT fingerprint, response_status, response_body
		FROM idempotency_records
		WHERE actor_id = $1 AND action = $2 AND idempotency_key = $3
	`, string(c.ActorID), c.Action, c.Key).Scan(&fingerprint, &status, &body)
	if err != nil {
		// The losing claim may race a Release by the winner. Treat a
		// vanished row as still in progress; the caller retries later.
		if errors.Is(err, pgx.ErrNoRows) {
			return idemstore.Result{State: idemstore.StateInProgress}, nil
		}
		return idemstore.Result{}, fmt.Errorf("load idempotency record: %w", err)
	}
	if fingerprint != c.Fingerprint {
		return idemstore.Result{State: idemstore.StateKeyReuse}, nil
	}
	if status == nil {
		return idemstore.Result{State: idemstore.StateInProgress}, nil
	}
	return idemstore.Result{
		State:    idemstore.StateReplay,
		Response: &idemstore.Response{Status: *status, Body: body},
	}, nil
}

func (s *Store) Complete(ctx context.Context, c idemstore.Claim, resp idemstore.Response) error {
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE idempotency_records
		SET response_status = $4, response_body = $5, completed_at = now()
		WHERE actor_id = $1 AND action = $2 AND idempotency_key = $3
		  AND response_status IS NULL
	`, string(c.ActorID), c.Action, c.Key, resp.Status, resp.Body)
	if err != nil {
		return fmt.Errorf("complete idempotency record: %w", err)
	}
	return nil
}

func (s *Store) Release(ctx context.Context, c idemstore.Claim) error {
	_, err := s.q(ctx).Exec(ctx, `
		DELETE FROM idempotency_records
		WHERE actor_id = $1 AND action = $2 AND idempotency_key = $3
		  AND response_status IS NULL
	`, string(c.ActorID), c.Action, c.Key)
	if err != nil {
		return fmt.Errorf("release idempotency record: %w", err)
	}
	return nil
}
