package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store/sqlite"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

func TestAuditStore_Record(t *testing.T) {
	conn := openTestDB(t)
	s := sqlite.NewAuditStore(conn, newTestWriter(t, conn))
	ctx := context.Background()

	err := s.Record(ctx, store.AuditEntry{
		ActorID:    "pastor-1",
		ActorRole:  types.RolePastor,
		Action:     "event.create",
		ResourceID: "ev-1",
		Details:    map[string]string{"title": "Prayer Meeting"},
		At:         time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var (
		actorRole, action, details string
		atMs                       int64
	)
	err = conn.QueryRowContext(ctx, `
SELECT actor_role, action, details_json, at_ms FROM audit_log WHERE resource_id = 'ev-1';
`).Scan(&actorRole, &action, &details, &atMs)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if actorRole != "pastor" || action != "event.create" {
		t.Errorf("row = %s/%s", actorRole, action)
	}
	if details != `{"title":"Prayer Meeting"}` {
		t.Errorf("details = %s", details)
	}
	if atMs == 0 {
		t.Error("at_ms not persisted")
	}
}
