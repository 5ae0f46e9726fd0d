package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	dbpkg "github.com/fellowship-tools/assembly/server/internal/db"
)

// AuditStore appends domain mutations to the audit_log table.
type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

func (s *AuditStore) Record(ctx context.Context, entry store.AuditEntry) error {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	details := "{}"
	if len(entry.Details) > 0 {
		enc, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("encode audit details: %w", err)
		}
		details = string(enc)
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_log(actor_id, actor_role, action, resource_id, details_json, at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, entry.ActorID, entry.ActorRole.String(), entry.Action, entry.ResourceID,
			details, entry.At.UTC().UnixMilli()); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
}
