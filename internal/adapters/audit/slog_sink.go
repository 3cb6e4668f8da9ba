// Package audit provides Sink implementations. The log sink is the
// production default: audit entries are structured log lines, so a log
// pipeline can collect them without a dedicated store.
package audit

import (
	"context"
	"log/slog"

	"github.com/campushub/activity-registration-api/internal/ports/out/audit"
)

type SlogSink struct {
	log *slog.Logger
}

func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Record(ctx context.Context, e audit.Entry) {
	s.log.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", e.Action),
		slog.String("actor_id", string(e.ActorID)),
		slog.String("entity_type", e.EntityType),
		slog.String("entity_id", e.EntityID),
		slog.Any("metadata", e.Metadata),
		slog.Time("at", e.At),
	)
}
