package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	dbpkg "github.com/fellowship-tools/assembly/server/internal/db"
)

// AttendanceStore persists attendance records in SQLite. The (event_id,
// user_id) primary key plus the single-writer worker is what enforces the
// one-record-per-pair invariant: CreateOrUpdate loads, mutates, and writes a
// pair inside one serialized transaction.
type AttendanceStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAttendanceStore(db *sql.DB, writer *dbpkg.Worker) *AttendanceStore {
	return &AttendanceStore{db: db, writer: writer}
}

const recordColumns = `
  event_id, user_id, status,
  marked_by, marked_at_ms, notes, location, arrival_ms, created_at_ms`

func (s *AttendanceStore) Get(ctx context.Context, eventID, userID string) (*types.AttendanceRecord, error) {
	rec, err := loadRecord(ctx, s.db, eventID, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &types.NotFoundError{Resource: "attendance record", ID: eventID + "/" + userID}
	}
	return rec, nil
}

func (s *AttendanceStore) ListByEvent(ctx context.Context, eventID string) ([]*types.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+recordColumns+` FROM attendance_records
WHERE event_id = ?
ORDER BY user_id;
`, eventID)
	if err != nil {
		return nil, fmt.Errorf("ListByEvent query: %w", err)
	}
	defer rows.Close()

	var out []*types.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListByEvent scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range out {
		history, err := loadHistory(ctx, s.db, rec.EventID, rec.UserID)
		if err != nil {
			return nil, err
		}
		rec.History = history
	}
	return out, nil
}

func (s *AttendanceStore) CountByEvent(ctx context.Context, eventID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attendance_records WHERE event_id = ?;`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountByEvent: %w", err)
	}
	return n, nil
}

func (s *AttendanceStore) CreateOrUpdate(ctx context.Context, eventID, userID string, mutate store.MutateRecordFn) (*types.AttendanceRecord, bool, error) {
	var (
		out     *types.AttendanceRecord
		created bool
	)
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := loadRecord(ctx, tx, eventID, userID)
		if err != nil {
			return err
		}
		priorHistory := 0
		if existing != nil {
			priorHistory = len(existing.History)
		}

		next, err := mutate(existing)
		if err != nil {
			return err
		}
		if next == nil {
			// Mutate declined to write; report what was there.
			out = existing
			created = false
			return nil
		}

		if existing == nil {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records(`+recordColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, recordArgs(next)...); err != nil {
				return fmt.Errorf("insert record %s/%s: %w", eventID, userID, err)
			}
			created = true
		} else {
			args := recordArgs(next)
			// status.. created_at_ms, then the key for WHERE.
			args = append(args[2:], eventID, userID)
			if _, err := tx.ExecContext(ctx, `
UPDATE attendance_records SET
  status = ?, marked_by = ?, marked_at_ms = ?,
  notes = ?, location = ?, arrival_ms = ?, created_at_ms = ?
WHERE event_id = ? AND user_id = ?;
`, args...); err != nil {
				return fmt.Errorf("update record %s/%s: %w", eventID, userID, err)
			}
		}

		// History is append-only: persist only entries past what was loaded.
		for _, ch := range next.History[priorHistory:] {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO attendance_history(event_id, user_id, from_status, to_status, changed_by, changed_at_ms)
VALUES (?, ?, ?, ?, ?, ?);
`, eventID, userID, string(ch.From), string(ch.To), ch.ChangedBy, ch.ChangedAt.UTC().UnixMilli()); err != nil {
				return fmt.Errorf("insert history %s/%s: %w", eventID, userID, err)
			}
		}

		out = next
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// queryer is the subset of *sql.DB and *sql.Tx the loaders need.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// loadRecord returns nil, nil when the pair has no record.
func loadRecord(ctx context.Context, q queryer, eventID, userID string) (*types.AttendanceRecord, error) {
	row := q.QueryRowContext(ctx, `
SELECT`+recordColumns+` FROM attendance_records
WHERE event_id = ? AND user_id = ?;
`, eventID, userID)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record %s/%s: %w", eventID, userID, err)
	}

	history, err := loadHistory(ctx, q, eventID, userID)
	if err != nil {
		return nil, err
	}
	rec.History = history
	return rec, nil
}

func loadHistory(ctx context.Context, q queryer, eventID, userID string) ([]types.AttendanceChange, error) {
	rows, err := q.QueryContext(ctx, `
SELECT from_status, to_status, changed_by, changed_at_ms
FROM attendance_history
WHERE event_id = ? AND user_id = ?
ORDER BY id;
`, eventID, userID)
	if err != nil {
		return nil, fmt.Errorf("load history %s/%s: %w", eventID, userID, err)
	}
	defer rows.Close()

	var out []types.AttendanceChange
	for rows.Next() {
		var ch types.AttendanceChange
		var changedMs int64
		if err := rows.Scan(&ch.From, &ch.To, &ch.ChangedBy, &changedMs); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		ch.ChangedAt = time.UnixMilli(changedMs).UTC()
		out = append(out, ch)
	}
	return out, rows.Err()
}

func scanRecord(row rowScanner) (*types.AttendanceRecord, error) {
	var (
		rec                 types.AttendanceRecord
		markedMs, createdMs int64
		arrivalMs           sql.NullInt64
	)
	err := row.Scan(
		&rec.EventID, &rec.UserID, &rec.Status,
		&rec.MarkedBy, &markedMs, &rec.Notes, &rec.Location, &arrivalMs, &createdMs,
	)
	if err != nil {
		return nil, err
	}
	rec.MarkedAt = time.UnixMilli(markedMs).UTC()
	rec.CreatedAt = time.UnixMilli(createdMs).UTC()
	if arrivalMs.Valid {
		t := time.UnixMilli(arrivalMs.Int64).UTC()
		rec.ArrivalTime = &t
	}
	return &rec, nil
}

// recordArgs flattens a record into the column order of recordColumns.
func recordArgs(rec *types.AttendanceRecord) []any {
	var arrivalMs any
	if rec.ArrivalTime != nil {
		arrivalMs = rec.ArrivalTime.UTC().UnixMilli()
	}
	return []any{
		rec.EventID, rec.UserID, string(rec.Status),
		rec.MarkedBy, rec.MarkedAt.UTC().UnixMilli(),
		rec.Notes, rec.Location, arrivalMs, rec.CreatedAt.UTC().UnixMilli(),
	}
}
