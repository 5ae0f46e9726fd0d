package types

import "time"

// EventStatus is the single source of truth for an event's position in its
// lifecycle. Derived booleans (closed, cancelled) are projections of it.
type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusUpcoming  EventStatus = "upcoming"
	StatusStarted   EventStatus = "started"
	StatusActive    EventStatus = "active"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
	StatusClosed    EventStatus = "closed" // terminal
)

// transitions is the full lifecycle table. CLOSED has no outgoing edges.
var transitions = map[EventStatus][]EventStatus{
	StatusDraft:     {StatusPublished, StatusCancelled},
	StatusPublished: {StatusUpcoming, StatusCancelled},
	StatusUpcoming:  {StatusStarted, StatusActive, StatusCompleted, StatusCancelled},
	StatusStarted:   {StatusActive, StatusCompleted, StatusCancelled},
	StatusActive:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusClosed},
	StatusCancelled: {StatusClosed},
}

// CanTransition reports whether the lifecycle table permits from -> to.
func CanTransition(from, to EventStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s EventStatus) bool {
	if s == StatusClosed {
		return true
	}
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transitions are permitted from s.
func (s EventStatus) Terminal() bool { return s == StatusClosed }

type ScopeType string

const (
	ScopeDepartment  ScopeType = "department"
	ScopeMinistry    ScopeType = "ministry"
	ScopePrayerTribe ScopeType = "prayer-tribe"
	ScopeSubgroup    ScopeType = "subgroup"
	ScopeCustom      ScopeType = "custom"
	ScopeAll         ScopeType = "all"
)

// Scope is the organizational target an event is restricted to. An "all"
// scope has no target and overlaps every other scope for conflict purposes.
type Scope struct {
	Type     ScopeType `json:"type"`
	TargetID string    `json:"target_id,omitempty"`
}

// Matches reports whether two scopes address the same audience. "all" on
// either side matches everything.
func (s Scope) Matches(other Scope) bool {
	if s.Type == ScopeAll || other.Type == ScopeAll {
		return true
	}
	return s.Type == other.Type && s.TargetID == other.TargetID
}

// AttendanceSummary is a denormalized read cache written by the aggregator.
// It is never authoritative for any per-user status.
type AttendanceSummary struct {
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Late           int     `json:"late"`
	Excused        int     `json:"excused"`
	Total          int     `json:"total"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// Event is an organizational gathering tracked by the engine. Mutation goes
// through the lifecycle service only; once CLOSED the event is immutable.
type Event struct {
	ID     string      `json:"id"`
	Title  string      `json:"title"`
	Start  time.Time   `json:"start"`
	End    time.Time   `json:"end"`
	Status EventStatus `json:"status"`
	Scope  Scope       `json:"scope"`

	Recurrence  *RecurrenceRule `json:"recurrence,omitempty"`
	IsRecurring bool            `json:"is_recurring"`
	// ParentEventID is an id-only weak reference from a generated instance
	// back to the event that produced it. Resolved via the store.
	ParentEventID string `json:"parent_event_id,omitempty"`

	CreatedBy        string `json:"created_by"`
	AssignedOperator string `json:"assigned_operator,omitempty"`

	ExpectedParticipants []string `json:"expected_participants,omitempty"`
	ActualParticipants   []string `json:"actual_participants,omitempty"`
	Capacity             int      `json:"capacity,omitempty"` // 0 = unlimited
	AllowWalkIns         bool     `json:"allow_walk_ins"`

	// AutoCloseOffset is how long after End the event stays markable before
	// the closure sweep claims it. Zero means the configured default.
	AutoCloseOffset time.Duration `json:"auto_close_offset,omitempty"`

	ReminderSent bool       `json:"reminder_sent,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	ClosedBy     string     `json:"closed_by,omitempty"`

	Summary AttendanceSummary `json:"summary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CloseDue returns the instant the closure sweep may claim the event,
// using def when the event carries no offset of its own.
func (e *Event) CloseDue(def time.Duration) time.Time {
	off := e.AutoCloseOffset
	if off <= 0 {
		off = def
	}
	return e.End.Add(off)
}

// IsExpected reports whether userID is in the expected participant set.
func (e *Event) IsExpected(userID string) bool {
	for _, p := range e.ExpectedParticipants {
		if p == userID {
			return true
		}
	}
	return false
}

// IsActual reports whether userID has been admitted as a walk-in.
func (e *Event) IsActual(userID string) bool {
	for _, p := range e.ActualParticipants {
		if p == userID {
			return true
		}
	}
	return false
}
