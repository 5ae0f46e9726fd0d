package store

import (
	"context"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// AuditEntry captures one domain mutation for the append-only audit trail.
type AuditEntry struct {
	ActorID    string
	ActorRole  types.Role
	Action     string // "event.create", "attendance.mark", ...
	ResourceID string
	Details    map[string]string
	At         time.Time
}

// AuditStore persists audit entries. Writes are best-effort from the
// services' point of view: a failing audit store never blocks or aborts the
// domain operation that produced the entry.
type AuditStore interface {
	Record(ctx context.Context, entry AuditEntry) error
}
