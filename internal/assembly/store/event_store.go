package store

import (
	"context"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// EventStore is the persistence boundary for events. Implementations must
// make TransitionStatus atomic: the status is re-checked against `from` at
// write time and a stale write fails with a types.ConflictError, which is the
// engine's lost-update guard. Everything else is plain CRUD plus the
// interval/scope predicates the engine issues.
type EventStore interface {
	Create(ctx context.Context, ev *types.Event) error
	Get(ctx context.Context, id string) (*types.Event, error)
	// Delete hard-removes an event. Only the lifecycle service calls this,
	// and only for UPCOMING events without attendance.
	Delete(ctx context.Context, id string) error

	// TransitionStatus atomically moves the event from -> to, applying mutate
	// to the reloaded row before the write. Returns the updated event, or a
	// *types.ConflictError with reason "stale_status" if the current status
	// no longer equals from.
	TransitionStatus(ctx context.Context, id string, from, to types.EventStatus, mutate func(*types.Event)) (*types.Event, error)

	// AddActualParticipant admits a walk-in. Adding an existing participant
	// is a no-op.
	AddActualParticipant(ctx context.Context, id, userID string) error

	// SetSummary writes the denormalized attendance cache. Last writer wins.
	SetSummary(ctx context.Context, id string, s types.AttendanceSummary) error

	// SetReminderSent latches the reminder flag so a reminder fires once.
	SetReminderSent(ctx context.Context, id string) error

	// ListOverlapping returns events whose [start,end) interval overlaps the
	// given half-open interval, regardless of scope or status.
	ListOverlapping(ctx context.Context, start, end time.Time) ([]*types.Event, error)

	// ListByParent returns the generated instances of a recurring event.
	ListByParent(ctx context.Context, parentID string) ([]*types.Event, error)

	// ListDueForClosure returns non-terminal events whose end plus auto-close
	// offset (or def where unset) is at or before now.
	ListDueForClosure(ctx context.Context, now time.Time, def time.Duration) ([]*types.Event, error)

	// ListNeedingReminder returns UPCOMING events starting in (from, until]
	// whose reminder has not been sent.
	ListNeedingReminder(ctx context.Context, from, until time.Time) ([]*types.Event, error)
}
