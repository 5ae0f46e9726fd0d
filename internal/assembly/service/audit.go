package service

import (
	"context"
	"log"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// auditor funnels domain mutations into the audit store. Writes are
// intentionally best-effort: a failed audit write is logged and suppressed so
// a downstream outage can never block a domain operation.
type auditor struct {
	store  store.AuditStore
	logger *log.Logger
}

func (a auditor) record(ctx context.Context, actor types.Actor, action, resourceID string, details map[string]string, at time.Time) {
	if a.store == nil {
		return
	}
	err := a.store.Record(ctx, store.AuditEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
		At:         at,
	})
	if err != nil && a.logger != nil {
		a.logger.Printf("audit write failed action=%s resource=%s: %v", action, resourceID, err)
	}
}

// notify sends a fire-and-forget signal, logging and suppressing failures.
func notify(ctx context.Context, n Notifier, logger *log.Logger, msg Notification) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil && logger != nil {
		logger.Printf("notification failed kind=%s event=%s: %v", msg.Kind, msg.EventID, err)
	}
}
