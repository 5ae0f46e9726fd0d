package store

import (
	"context"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// MutateRecordFn receives the existing record for a (event, user) pair — nil
// if none exists yet — and returns the record to persist. Returning an error
// aborts the write and propagates unchanged.
type MutateRecordFn func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error)

// AttendanceStore persists per-(event, user) attendance. CreateOrUpdate is
// the only write path and must be atomic per pair: the (EventID, UserID)
// uniqueness invariant is enforced here, not by in-process locking in the
// services. Records are never deleted.
type AttendanceStore interface {
	Get(ctx context.Context, eventID, userID string) (*types.AttendanceRecord, error)
	ListByEvent(ctx context.Context, eventID string) ([]*types.AttendanceRecord, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)

	// CreateOrUpdate atomically loads, mutates, and persists the record for
	// one pair. The second return value reports whether a record was created
	// (as opposed to updated in place).
	CreateOrUpdate(ctx context.Context, eventID, userID string, mutate MutateRecordFn) (*types.AttendanceRecord, bool, error)
}
