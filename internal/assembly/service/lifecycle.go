package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fellowship-tools/assembly/server/internal/assembly/authz"
	"github.com/fellowship-tools/assembly/server/internal/assembly/recurrence"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	"github.com/fellowship-tools/assembly/server/internal/metrics"
)

// Lifecycle owns the event status state machine. Every event mutation —
// create, transition, cancel, delete — goes through here, which is what keeps
// the transition table authoritative.
type Lifecycle struct {
	events     store.EventStore
	attendance store.AttendanceStore
	detector   *ConflictDetector
	recorder   *Recorder
	aggregator *Aggregator
	audit      auditor
	notifier   Notifier
	clock      Clock
	logger     *log.Logger

	recurrenceCeiling int
}

type LifecycleConfig struct {
	// RecurrenceCeiling caps how many instances one rule may generate.
	// 0 means recurrence.DefaultCeiling.
	RecurrenceCeiling int
}

func NewLifecycle(
	events store.EventStore,
	attendance store.AttendanceStore,
	detector *ConflictDetector,
	recorder *Recorder,
	aggregator *Aggregator,
	auditStore store.AuditStore,
	notifier Notifier,
	clock Clock,
	logger *log.Logger,
	cfg LifecycleConfig,
) *Lifecycle {
	return &Lifecycle{
		events:            events,
		attendance:        attendance,
		detector:          detector,
		recorder:          recorder,
		aggregator:        aggregator,
		audit:             auditor{store: auditStore, logger: logger},
		notifier:          notifier,
		clock:             clock,
		logger:            logger,
		recurrenceCeiling: cfg.RecurrenceCeiling,
	}
}

type CreateEventInput struct {
	Title string      `json:"title"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Scope types.Scope `json:"scope"`
	// Draft creates the event in DRAFT instead of going straight to UPCOMING.
	Draft bool `json:"draft,omitempty"`

	Recurrence *types.RecurrenceRule `json:"recurrence,omitempty"`

	AssignedOperator     string   `json:"assigned_operator,omitempty"`
	ExpectedParticipants []string `json:"expected_participants,omitempty"`
	Capacity             int      `json:"capacity,omitempty"`
	AllowWalkIns         bool     `json:"allow_walk_ins,omitempty"`

	AutoCloseOffset time.Duration `json:"auto_close_offset,omitempty"`
}

// Create validates, authorizes, conflict-checks, and persists a new event,
// expanding its recurrence rule into instances when one is present.
func (l *Lifecycle) Create(ctx context.Context, in CreateEventInput, actor types.Actor) (*types.Event, error) {
	now := l.clock.Now()

	if in.Title == "" {
		return nil, &types.ValidationError{Field: "title", Reason: "required"}
	}
	if !in.End.After(in.Start) {
		return nil, &types.ValidationError{Field: "schedule", Reason: "end must be after start"}
	}
	if in.Scope.Type != types.ScopeAll && in.Scope.TargetID == "" {
		return nil, &types.ValidationError{Field: "scope", Reason: "target required for scoped events"}
	}
	switch in.Scope.Type {
	case types.ScopeDepartment, types.ScopeMinistry, types.ScopePrayerTribe,
		types.ScopeSubgroup, types.ScopeCustom, types.ScopeAll:
	default:
		return nil, &types.ValidationError{Field: "scope", Reason: "unknown scope type"}
	}
	if !in.Start.After(now) && !authz.Elevated(actor.Role) {
		return nil, &types.ValidationError{Field: "start", Reason: "must be in the future"}
	}

	if !authz.CanCreateEvent(actor.Role) {
		return nil, &types.ForbiddenError{ActorID: actor.ID, Capability: "event.create"}
	}
	if !actor.MemberOf(in.Scope) && !authz.Elevated(actor.Role) {
		return nil, &types.ForbiddenError{ActorID: actor.ID, Capability: "event.create.scope"}
	}

	if err := l.detector.Check(ctx, in.Start, in.End, in.Scope, ""); err != nil {
		if _, ok := err.(*types.ConflictError); ok {
			metrics.ConflictsDetected.Inc()
		}
		return nil, err
	}

	status := types.StatusUpcoming
	if in.Draft {
		status = types.StatusDraft
	}

	ev := &types.Event{
		ID:                   uuid.NewString(),
		Title:                in.Title,
		Start:                in.Start,
		End:                  in.End,
		Status:               status,
		Scope:                in.Scope,
		Recurrence:           in.Recurrence,
		IsRecurring:          in.Recurrence != nil,
		CreatedBy:            actor.ID,
		AssignedOperator:     in.AssignedOperator,
		ExpectedParticipants: in.ExpectedParticipants,
		Capacity:             in.Capacity,
		AllowWalkIns:         in.AllowWalkIns,
		AutoCloseOffset:      in.AutoCloseOffset,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := l.events.Create(ctx, ev); err != nil {
		return nil, err
	}
	metrics.EventsCreated.Inc()

	if ev.IsRecurring {
		if err := l.expandRecurrence(ctx, ev); err != nil {
			return nil, err
		}
	}

	l.audit.record(ctx, actor, "event.create", ev.ID, map[string]string{
		"title": ev.Title, "status": string(ev.Status),
	}, now)
	return ev, nil
}

// expandRecurrence persists one event per generated instance, de-duplicating
// by (parent, start) so re-running expansion never double-inserts.
func (l *Lifecycle) expandRecurrence(ctx context.Context, parent *types.Event) error {
	instances, err := recurrence.Expand(parent.Start, parent.End, *parent.Recurrence, l.recurrenceCeiling)
	if err != nil {
		return err
	}

	existing, err := l.events.ListByParent(ctx, parent.ID)
	if err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(existing))
	for _, ev := range existing {
		seen[ev.Start.UnixMilli()] = struct{}{}
	}

	now := l.clock.Now()
	for _, inst := range instances {
		if _, dup := seen[inst.Start.UnixMilli()]; dup {
			continue
		}
		child := &types.Event{
			ID:                   uuid.NewString(),
			Title:                parent.Title,
			Start:                inst.Start,
			End:                  inst.End,
			Status:               types.StatusUpcoming,
			Scope:                parent.Scope,
			IsRecurring:          false,
			ParentEventID:        parent.ID,
			CreatedBy:            parent.CreatedBy,
			AssignedOperator:     parent.AssignedOperator,
			ExpectedParticipants: parent.ExpectedParticipants,
			Capacity:             parent.Capacity,
			AllowWalkIns:         parent.AllowWalkIns,
			AutoCloseOffset:      parent.AutoCloseOffset,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := l.events.Create(ctx, child); err != nil {
			return err
		}
		metrics.EventsCreated.Inc()
	}
	return nil
}

// Transition moves an event to target if the lifecycle table permits it. The
// write is a compare-and-swap on the re-read status: a concurrent transition
// surfaces as a stale-state conflict for the caller to retry.
func (l *Lifecycle) Transition(ctx context.Context, eventID string, target types.EventStatus, actor types.Actor) (*types.Event, error) {
	ev, err := l.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !authz.CanModifyEvent(actor, ev) {
		return nil, &types.ForbiddenError{ActorID: actor.ID, Capability: "event.modify"}
	}
	if !types.ValidStatus(target) {
		return nil, &types.ValidationError{Field: "target", Reason: "unknown status"}
	}
	if !types.CanTransition(ev.Status, target) {
		return nil, &types.InvalidTransitionError{EventID: eventID, From: ev.Status, To: target}
	}

	now := l.clock.Now()
	from := ev.Status
	updated, err := l.events.TransitionStatus(ctx, eventID, from, target, func(e *types.Event) {
		switch target {
		case types.StatusCompleted:
			t := now
			e.CompletedAt = &t
		case types.StatusClosed:
			t := now
			e.ClosedAt = &t
			e.ClosedBy = actor.ID
		}
	})
	if err != nil {
		return nil, err
	}
	metrics.EventTransitions.WithLabelValues(string(from), string(target)).Inc()

	if target == types.StatusClosed {
		// A cancelled event closes without absent-marking; nobody was
		// expected to show up.
		if from == types.StatusCompleted {
			if _, err := l.recorder.finalizeAbsentees(ctx, updated, actor); err != nil {
				l.logger.Printf("closure finalize failed event=%s: %v", eventID, err)
			}
		}
		notify(ctx, l.notifier, l.logger, Notification{
			Kind: NotifyEventClosed, EventID: updated.ID, Title: updated.Title, At: now,
		})
	}

	l.audit.record(ctx, actor, "event.transition", eventID, map[string]string{
		"from": string(from), "to": string(target),
	}, now)

	// Re-read so the caller sees the finalized summary.
	return l.events.Get(ctx, eventID)
}

// CancelOrDelete hard-deletes an UPCOMING event with no attendance; anything
// else is soft-cancelled so attendance history survives. The returned bool
// reports whether a hard delete happened.
func (l *Lifecycle) CancelOrDelete(ctx context.Context, eventID string, actor types.Actor) (bool, error) {
	ev, err := l.events.Get(ctx, eventID)
	if err != nil {
		return false, err
	}
	count, err := l.attendance.CountByEvent(ctx, eventID)
	if err != nil {
		return false, err
	}

	if ev.Status == types.StatusUpcoming && count == 0 {
		if !authz.CanDeleteEvent(actor, ev, count) {
			return false, &types.ForbiddenError{ActorID: actor.ID, Capability: "event.delete"}
		}
		if err := l.events.Delete(ctx, eventID); err != nil {
			return false, err
		}
		l.audit.record(ctx, actor, "event.delete", eventID, nil, l.clock.Now())
		return true, nil
	}

	if _, err := l.Transition(ctx, eventID, types.StatusCancelled, actor); err != nil {
		return false, err
	}
	return false, nil
}
