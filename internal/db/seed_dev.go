package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SeedDev inserts a starter event so a fresh dev database has something to
// mark attendance against. Safe to call repeatedly.
func SeedDev(ctx context.Context, db *sql.DB) error {
	now := time.Now().UTC()
	start := now.Add(time.Hour).Truncate(time.Minute)
	end := start.Add(2 * time.Hour)

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO events(
  id, title, start_ms, end_ms, status,
  scope_type, scope_target,
  created_by, expected_participants, allow_walk_ins,
  created_at_ms, updated_at_ms
) VALUES (
  'ev_dev_sunday', 'Sunday Gathering', ?, ?, 'upcoming',
  'all', '',
  'dev-seed', '["member-1","member-2","member-3"]', 1,
  ?, ?
);`, start.UnixMilli(), end.UnixMilli(), now.UnixMilli(), now.UnixMilli()); err != nil {
		return fmt.Errorf("seed event: %w", err)
	}

	return nil
}
