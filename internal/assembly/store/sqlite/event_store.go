package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	dbpkg "github.com/fellowship-tools/assembly/server/internal/db"
)

// EventStore persists events in SQLite. Reads go straight to the pool; every
// write runs inside the single-writer worker, which is what makes
// TransitionStatus a real compare-and-swap: the status check and the update
// commit in one serialized transaction.
type EventStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker) *EventStore {
	return &EventStore{db: db, writer: writer}
}

const eventColumns = `
  id, title, start_ms, end_ms, status,
  scope_type, scope_target,
  recurrence_json, is_recurring, parent_event_id,
  created_by, assigned_operator,
  expected_participants, actual_participants, capacity, allow_walk_ins,
  auto_close_offset_ms, reminder_sent, completed_at_ms, closed_at_ms, closed_by,
  summary_present, summary_absent, summary_late, summary_excused, summary_total, summary_rate,
  created_at_ms, updated_at_ms`

func (s *EventStore) Create(ctx context.Context, ev *types.Event) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?;`, ev.ID).Scan(&exists)
		if err == nil {
			return &types.ConflictError{Reason: "duplicate_instance", BlockingEventID: ev.ID}
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("Create check: %w", err)
		}
		return insertEvent(ctx, tx, ev)
	})
}

func (s *EventStore) Get(ctx context.Context, id string) (*types.Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT`+eventColumns+` FROM events WHERE id = ?;`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, &types.NotFoundError{Resource: "event", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("Get event %s: %w", id, err)
	}
	return ev, nil
}

func (s *EventStore) Delete(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("Delete event %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("Delete rows affected: %w", err)
		}
		if n == 0 {
			return &types.NotFoundError{Resource: "event", ID: id}
		}
		return nil
	})
}

func (s *EventStore) TransitionStatus(ctx context.Context, id string, from, to types.EventStatus, mutate func(*types.Event)) (*types.Event, error) {
	var out *types.Event
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT`+eventColumns+` FROM events WHERE id = ?;`, id)
		ev, err := scanEvent(row)
		if err == sql.ErrNoRows {
			return &types.NotFoundError{Resource: "event", ID: id}
		}
		if err != nil {
			return fmt.Errorf("TransitionStatus load %s: %w", id, err)
		}
		if ev.Status != from {
			return &types.ConflictError{Reason: "stale_status", BlockingEventID: id}
		}

		ev.Status = to
		if mutate != nil {
			mutate(ev)
		}
		ev.UpdatedAt = time.Now().UTC()

		if err := updateEvent(ctx, tx, ev); err != nil {
			return err
		}
		out = ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *EventStore) AddActualParticipant(ctx context.Context, id, userID string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT actual_participants FROM events WHERE id = ?;`, id).Scan(&raw)
		if err == sql.ErrNoRows {
			return &types.NotFoundError{Resource: "event", ID: id}
		}
		if err != nil {
			return fmt.Errorf("AddActualParticipant load: %w", err)
		}

		var actual []string
		if err := json.Unmarshal([]byte(raw), &actual); err != nil {
			return fmt.Errorf("AddActualParticipant decode: %w", err)
		}
		for _, u := range actual {
			if u == userID {
				return nil
			}
		}
		actual = append(actual, userID)
		enc, err := json.Marshal(actual)
		if err != nil {
			return fmt.Errorf("AddActualParticipant encode: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
UPDATE events SET actual_participants = ?, updated_at_ms = ? WHERE id = ?;
`, string(enc), time.Now().UTC().UnixMilli(), id); err != nil {
			return fmt.Errorf("AddActualParticipant update: %w", err)
		}
		return nil
	})
}

func (s *EventStore) SetSummary(ctx context.Context, id string, sum types.AttendanceSummary) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE events SET
  summary_present = ?, summary_absent = ?, summary_late = ?,
  summary_excused = ?, summary_total = ?, summary_rate = ?,
  updated_at_ms = ?
WHERE id = ?;
`, sum.Present, sum.Absent, sum.Late, sum.Excused, sum.Total, sum.AttendanceRate,
			time.Now().UTC().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("SetSummary update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("SetSummary rows affected: %w", err)
		}
		if n == 0 {
			return &types.NotFoundError{Resource: "event", ID: id}
		}
		return nil
	})
}

func (s *EventStore) SetReminderSent(ctx context.Context, id string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE events SET reminder_sent = 1 WHERE id = ?;`, id)
		if err != nil {
			return fmt.Errorf("SetReminderSent update: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("SetReminderSent rows affected: %w", err)
		}
		if n == 0 {
			return &types.NotFoundError{Resource: "event", ID: id}
		}
		return nil
	})
}

func (s *EventStore) ListOverlapping(ctx context.Context, start, end time.Time) ([]*types.Event, error) {
	// Half-open intervals: [start, end) overlaps [s, e) iff start < e && end > s.
	return s.list(ctx, `
SELECT`+eventColumns+` FROM events
WHERE start_ms < ? AND end_ms > ?
ORDER BY start_ms;
`, end.UnixMilli(), start.UnixMilli())
}

func (s *EventStore) ListByParent(ctx context.Context, parentID string) ([]*types.Event, error) {
	return s.list(ctx, `
SELECT`+eventColumns+` FROM events
WHERE parent_event_id = ?
ORDER BY start_ms;
`, parentID)
}

func (s *EventStore) ListDueForClosure(ctx context.Context, now time.Time, def time.Duration) ([]*types.Event, error) {
	return s.list(ctx, `
SELECT`+eventColumns+` FROM events
WHERE status != 'closed'
  AND end_ms + (CASE WHEN auto_close_offset_ms > 0 THEN auto_close_offset_ms ELSE ? END) <= ?
ORDER BY start_ms;
`, def.Milliseconds(), now.UnixMilli())
}

func (s *EventStore) ListNeedingReminder(ctx context.Context, from, until time.Time) ([]*types.Event, error) {
	return s.list(ctx, `
SELECT`+eventColumns+` FROM events
WHERE status = 'upcoming'
  AND reminder_sent = 0
  AND start_ms > ? AND start_ms <= ?
ORDER BY start_ms;
`, from.UnixMilli(), until.UnixMilli())
}

func (s *EventStore) list(ctx context.Context, query string, args ...any) ([]*types.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*types.Event, error) {
	var (
		ev                       types.Event
		startMs, endMs           int64
		recurrenceJSON, parentID sql.NullString
		isRecurring              int
		expectedJSON, actualJSON string
		allowWalkIns             int
		autoCloseMs              int64
		reminderSent             int
		completedMs, closedMs    sql.NullInt64
		createdMs, updatedMs     int64
	)
	err := row.Scan(
		&ev.ID, &ev.Title, &startMs, &endMs, &ev.Status,
		&ev.Scope.Type, &ev.Scope.TargetID,
		&recurrenceJSON, &isRecurring, &parentID,
		&ev.CreatedBy, &ev.AssignedOperator,
		&expectedJSON, &actualJSON, &ev.Capacity, &allowWalkIns,
		&autoCloseMs, &reminderSent, &completedMs, &closedMs, &ev.ClosedBy,
		&ev.Summary.Present, &ev.Summary.Absent, &ev.Summary.Late,
		&ev.Summary.Excused, &ev.Summary.Total, &ev.Summary.AttendanceRate,
		&createdMs, &updatedMs,
	)
	if err != nil {
		return nil, err
	}

	ev.Start = time.UnixMilli(startMs).UTC()
	ev.End = time.UnixMilli(endMs).UTC()
	ev.IsRecurring = isRecurring == 1
	ev.ParentEventID = parentID.String
	ev.AllowWalkIns = allowWalkIns == 1
	ev.AutoCloseOffset = time.Duration(autoCloseMs) * time.Millisecond
	ev.ReminderSent = reminderSent == 1
	ev.CreatedAt = time.UnixMilli(createdMs).UTC()
	ev.UpdatedAt = time.UnixMilli(updatedMs).UTC()

	if completedMs.Valid {
		t := time.UnixMilli(completedMs.Int64).UTC()
		ev.CompletedAt = &t
	}
	if closedMs.Valid {
		t := time.UnixMilli(closedMs.Int64).UTC()
		ev.ClosedAt = &t
	}

	if err := json.Unmarshal([]byte(expectedJSON), &ev.ExpectedParticipants); err != nil {
		return nil, fmt.Errorf("decode expected participants: %w", err)
	}
	if err := json.Unmarshal([]byte(actualJSON), &ev.ActualParticipants); err != nil {
		return nil, fmt.Errorf("decode actual participants: %w", err)
	}
	if recurrenceJSON.Valid && recurrenceJSON.String != "" {
		var rule types.RecurrenceRule
		if err := json.Unmarshal([]byte(recurrenceJSON.String), &rule); err != nil {
			return nil, fmt.Errorf("decode recurrence rule: %w", err)
		}
		ev.Recurrence = &rule
	}
	return &ev, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, ev *types.Event) error {
	args, err := eventArgs(ev)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO events(`+eventColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, args...); err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

func updateEvent(ctx context.Context, tx *sql.Tx, ev *types.Event) error {
	args, err := eventArgs(ev)
	if err != nil {
		return err
	}
	// Shift id to the end for the WHERE clause.
	args = append(args[1:], args[0])
	if _, err := tx.ExecContext(ctx, `
UPDATE events SET
  title = ?, start_ms = ?, end_ms = ?, status = ?,
  scope_type = ?, scope_target = ?,
  recurrence_json = ?, is_recurring = ?, parent_event_id = ?,
  created_by = ?, assigned_operator = ?,
  expected_participants = ?, actual_participants = ?, capacity = ?, allow_walk_ins = ?,
  auto_close_offset_ms = ?, reminder_sent = ?, completed_at_ms = ?, closed_at_ms = ?, closed_by = ?,
  summary_present = ?, summary_absent = ?, summary_late = ?, summary_excused = ?, summary_total = ?, summary_rate = ?,
  created_at_ms = ?, updated_at_ms = ?
WHERE id = ?;
`, args...); err != nil {
		return fmt.Errorf("update event %s: %w", ev.ID, err)
	}
	return nil
}

// eventArgs flattens an event into the column order of eventColumns.
func eventArgs(ev *types.Event) ([]any, error) {
	expected, err := json.Marshal(emptyIfNil(ev.ExpectedParticipants))
	if err != nil {
		return nil, fmt.Errorf("encode expected participants: %w", err)
	}
	actual, err := json.Marshal(emptyIfNil(ev.ActualParticipants))
	if err != nil {
		return nil, fmt.Errorf("encode actual participants: %w", err)
	}

	var recurrence any
	if ev.Recurrence != nil {
		enc, err := json.Marshal(ev.Recurrence)
		if err != nil {
			return nil, fmt.Errorf("encode recurrence rule: %w", err)
		}
		recurrence = string(enc)
	}

	var parentID any
	if ev.ParentEventID != "" {
		parentID = ev.ParentEventID
	}
	var completedMs, closedMs any
	if ev.CompletedAt != nil {
		completedMs = ev.CompletedAt.UTC().UnixMilli()
	}
	if ev.ClosedAt != nil {
		closedMs = ev.ClosedAt.UTC().UnixMilli()
	}

	return []any{
		ev.ID, ev.Title, ev.Start.UTC().UnixMilli(), ev.End.UTC().UnixMilli(), string(ev.Status),
		string(ev.Scope.Type), ev.Scope.TargetID,
		recurrence, boolInt(ev.IsRecurring), parentID,
		ev.CreatedBy, ev.AssignedOperator,
		string(expected), string(actual), ev.Capacity, boolInt(ev.AllowWalkIns),
		ev.AutoCloseOffset.Milliseconds(), boolInt(ev.ReminderSent), completedMs, closedMs, ev.ClosedBy,
		ev.Summary.Present, ev.Summary.Absent, ev.Summary.Late,
		ev.Summary.Excused, ev.Summary.Total, ev.Summary.AttendanceRate,
		ev.CreatedAt.UTC().UnixMilli(), ev.UpdatedAt.UTC().UnixMilli(),
	}, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
