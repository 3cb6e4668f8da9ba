package idemstore

import (
	"context"
	"sync"

	"github.com/campushub/activity-registration-api/internal/ports/out/idemstore"
)

type claimKey struct {
	actorID string
	action  string
	key     string
}

type record struct {
	fingerprint string
	completed   bool
	response    idemstore.Response
}

// Store is an in-memory implementation of idemstore.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.Mutex
	m  map[claimKey]*record
}

func NewStore() *Store {
	return &Store{m: make(map[claimKey]*record)}
}

func (s *Store) Claim(ctx context.Context, c idemstore.Claim) (idemstore.Result, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(c)
	rec, ok := s.m[k]
	if !ok {
		s.m[k] = &record{fingerprint: c.Fingerprint}
		return idemstore.Result{State: idemstore.StateNew}, nil
	}
	if rec.fingerprint != c.Fingerprint {
		return idemstore.Result{State: idemstore.StateKeyReuse}, nil
	}
	if rec.completed {
		body := append([]byte(nil), rec.response.Body...)
		return idemstore.Result{
			State:    idemstore.StateReplay,
			Response: &idemstore.Response{Status: rec.response.Status, Body: body},
		}, nil
	}
	return idemstore.Result{State: idemstore.StateInProgress}, nil
}

func (s *Store) Complete(ctx context.Context, c idemstore.Claim, resp idemstore.Response) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.m[keyOf(c)]
	if !ok || rec.completed {
		// Write-once: completed rows are never updated again.
		return nil
	}
	rec.completed = true
	rec.response = idemstore.Response{Status: resp.Status, Body: append([]byte(nil), resp.Body...)}
	return nil
}

func (s *Store) Release(ctx context.Context, c idemstore.Claim) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(c)
	if rec, ok := s.m[k]; ok && !rec.completed {
		delete(s.m, k)
	}
	return nil
}

func keyOf(c idemstore.Claim) claimKey {
	return claimKey{actorID: string(c.ActorID), action: c.Action, key: c.Key}
}
