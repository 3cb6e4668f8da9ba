package audit

import (
	"context"
	"time"

	"github.com/campushub/activity-registration-api/internal/domain"
)

// Entry is one append-only outcome record.
type Entry struct {
	Action     string
	ActorID    domain.UserID
	EntityType string
	EntityID   string
	Metadata   map[string]any
	At         time.Time
}

// Sink receives best-effort audit entries after a mutation commits.
// Implementations must log-and-continue on failure; they never roll back
// or block the business outcome.
type Sink interface {
	Record(ctx context.Context, e Entry)
}
