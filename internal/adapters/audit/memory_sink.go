package audit

import (
	"context"
	"sync"

	"github.com/campushub/activity-registration-api/internal/ports/out/audit"
)

// MemorySink collects entries for assertions in tests.
type MemorySink struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(_ context.Context, e audit.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func (s *MemorySink) Entries() []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
