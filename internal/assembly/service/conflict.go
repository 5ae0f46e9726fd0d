package service

import (
	"context"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// ConflictDetector answers "would an event at [start,end) in this scope
// collide with anything already on the calendar". The overlap test is
// half-open, so back-to-back events never falsely conflict.
type ConflictDetector struct {
	events store.EventStore
}

func NewConflictDetector(events store.EventStore) *ConflictDetector {
	return &ConflictDetector{events: events}
}

// Check returns a *types.ConflictError naming the earliest-starting
// conflicting event, or nil when the slot is free. Cancelled, completed, and
// closed events never conflict. excludeID skips the event being rescheduled.
func (d *ConflictDetector) Check(ctx context.Context, start, end time.Time, scope types.Scope, excludeID string) error {
	candidates, err := d.events.ListOverlapping(ctx, start, end)
	if err != nil {
		return err
	}

	// Store results are ordered by start, so the first match is the
	// earliest-starting conflict.
	for _, other := range candidates {
		if other.ID == excludeID {
			continue
		}
		switch other.Status {
		case types.StatusCancelled, types.StatusCompleted, types.StatusClosed:
			continue
		}
		if !scope.Matches(other.Scope) {
			continue
		}
		if start.Before(other.End) && end.After(other.Start) {
			return &types.ConflictError{
				Reason:          "schedule_overlap",
				BlockingEventID: other.ID,
				Start:           other.Start,
				End:             other.End,
			}
		}
	}
	return nil
}
