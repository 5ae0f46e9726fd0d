package types

import (
	"fmt"
	"time"
)

// The engine reports every domain failure as one of the typed errors below so
// callers can map them to precise responses with errors.As. Collaborator
// failures (audit, notification) are never surfaced through these.

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string // "event", "attendance record"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports a denied capability check.
type ForbiddenError struct {
	ActorID    string
	Capability string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s lacks capability %s", e.ActorID, e.Capability)
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a lifecycle move the table does not permit.
type InvalidTransitionError struct {
	EventID string
	From    EventStatus
	To      EventStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %s: transition %s -> %s not permitted", e.EventID, e.From, e.To)
}

// ConflictError reports a scheduling overlap or a stale-state write. For
// overlaps, BlockingEventID names the earliest conflicting event; for stale
// writes it is the event whose status moved underneath the caller.
type ConflictError struct {
	Reason          string // "schedule_overlap" | "stale_status" | "duplicate_instance"
	BlockingEventID string
	Start           time.Time
	End             time.Time
}

func (e *ConflictError) Error() string {
	if e.BlockingEventID != "" {
		return fmt.Sprintf("conflict (%s): blocked by event %s", e.Reason, e.BlockingEventID)
	}
	return fmt.Sprintf("conflict (%s)", e.Reason)
}

// CapacityError reports an event at its participant capacity.
type CapacityError struct {
	EventID  string
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("event %s is at capacity (%d)", e.EventID, e.Capacity)
}

// RuleViolationError reports a business rule stopping an otherwise
// well-formed operation (delete with attendance, mark outside the window).
type RuleViolationError struct {
	Rule   string
	Detail string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Detail)
}
