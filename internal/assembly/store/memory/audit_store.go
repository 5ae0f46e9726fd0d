package memory

import (
	"context"
	"sync"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
)

// AuditStore is an in-memory append-only audit trail for tests and dev
// environments.
type AuditStore struct {
	mu      sync.Mutex
	entries []store.AuditEntry
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) Record(_ context.Context, entry store.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// Entries returns a copy of all recorded entries. Test-only helper.
func (s *AuditStore) Entries() []store.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
