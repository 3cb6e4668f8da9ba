package idemstore

import (
	"context"

	"github.com/campushub/activity-registration-api/internal/domain"
)

// State is the outcome of claiming an idempotency key.
type State string

const (
	// StateNew means the claim row was inserted; the caller owns execution.
	StateNew State = "new"
	// StateReplay means a completed result is stored; return it verbatim.
	StateReplay State = "replay"
	// StateInProgress means another request holds the claim but has not
	// completed; the caller should retry later, not assume failure.
	StateInProgress State = "in_progress"
	// StateKeyReuse means the key exists with a different fingerprint:
	// the client reused a key for a semantically different request.
	StateKeyReuse State = "key_reuse"
)

// Claim identifies one logical mutating request.
type Claim struct {
	ActorID domain.UserID
	Action  string
	Key     string
	// Fingerprint is a digest of the semantically relevant input (for
	// registrations, the activity id). A second claim under the same key
	// with a different fingerprint is a client error, not a replay.
	Fingerprint string
}

// Response is the stored outcome replayed for duplicate requests.
type Response struct {
	Status int
	Body   []byte
}

// Result is what Claim resolved to.
type Result struct {
	State State
	// Response is set only for StateReplay.
	Response *Response
}

// Store is the durable claim/replay ledger keyed by (actor, action, key).
// The claim insert doubles as a synchronization point: concurrent requests
// with the same key collapse to at most one execution.
type Store interface {
	// Claim atomically inserts the ledger row for c, or classifies the
	// existing row (replay / in progress / key reuse).
	Claim(ctx context.Context, c Claim) (Result, error)

	// Complete stores the outcome for a claimed row. The row is
	// write-once: a completed row is never updated again.
	Complete(ctx context.Context, c Claim, resp Response) error

	// Release removes an incomplete claim so the key becomes retryable
	// after an unexpected failure. Completed rows are left untouched.
	Release(ctx context.Context, c Claim) error
}
