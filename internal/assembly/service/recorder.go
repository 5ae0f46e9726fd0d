package service

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/authz"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	"github.com/fellowship-tools/assembly/server/internal/metrics"
)

// autoClosureNote marks records created by the closure sweep for unmarked
// expected participants.
const autoClosureNote = "auto-marked at closure"

// Recorder handles per-(event, user) attendance marking. The at-most-one
// record invariant is enforced by the store's atomic CreateOrUpdate, not by
// any locking here.
type Recorder struct {
	events     store.EventStore
	attendance store.AttendanceStore
	aggregator *Aggregator
	audit      auditor
	clock      Clock
	logger     *log.Logger

	// autoCloseOffset is the late-marking window after an event completes.
	// It is the same window the closure sweep uses.
	autoCloseOffset time.Duration
}

type RecorderConfig struct {
	AutoCloseOffset time.Duration
}

func NewRecorder(
	events store.EventStore,
	attendance store.AttendanceStore,
	aggregator *Aggregator,
	auditStore store.AuditStore,
	clock Clock,
	logger *log.Logger,
	cfg RecorderConfig,
) *Recorder {
	off := cfg.AutoCloseOffset
	if off <= 0 {
		off = 3 * time.Hour
	}
	return &Recorder{
		events:          events,
		attendance:      attendance,
		aggregator:      aggregator,
		audit:           auditor{store: auditStore, logger: logger},
		clock:           clock,
		logger:          logger,
		autoCloseOffset: off,
	}
}

// MarkInput is the caller-supplied portion of a mark.
type MarkInput struct {
	Status   types.AttendanceStatus `json:"status"`
	Notes    string                 `json:"notes,omitempty"`
	Location string                 `json:"location,omitempty"`
}

// Mark records attendance for userID on eventID. Self-marking is always
// permitted; marking others goes through the capability predicates. Walk-ins
// are admitted only when the event allows them and has room.
func (r *Recorder) Mark(ctx context.Context, eventID, userID string, in MarkInput, actor types.Actor) (*types.AttendanceRecord, error) {
	if !types.ValidAttendanceStatus(in.Status) || in.Status == types.AttendancePending {
		return nil, &types.ValidationError{Field: "status", Reason: "must be present, absent, late, or excused"}
	}

	ev, err := r.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	if err := r.checkWindow(ev, now); err != nil {
		return nil, err
	}
	if !authz.CanMarkAttendance(actor, ev, userID) {
		return nil, &types.ForbiddenError{ActorID: actor.ID, Capability: "attendance.mark"}
	}

	walkIn := false
	if !ev.IsExpected(userID) && !ev.IsActual(userID) {
		if !ev.AllowWalkIns {
			return nil, &types.RuleViolationError{
				Rule:   "walk_ins_not_allowed",
				Detail: "user is not an expected participant of event " + eventID,
			}
		}
		if ev.Capacity > 0 && len(ev.ExpectedParticipants)+len(ev.ActualParticipants) >= ev.Capacity {
			return nil, &types.CapacityError{EventID: eventID, Capacity: ev.Capacity}
		}
		walkIn = true
	}

	rec, _, err := r.attendance.CreateOrUpdate(ctx, eventID, userID, func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		if existing == nil {
			return newRecord(eventID, userID, in, actor.ID, now), nil
		}
		applyMark(existing, in, actor.ID, now)
		return existing, nil
	})
	if err != nil {
		return nil, err
	}

	if walkIn {
		if err := r.events.AddActualParticipant(ctx, eventID, userID); err != nil {
			r.logger.Printf("walk-in registration failed event=%s user=%s: %v", eventID, userID, err)
		}
	}

	r.recompute(ctx, eventID)
	metrics.AttendanceMarks.WithLabelValues(string(in.Status)).Inc()
	r.audit.record(ctx, actor, "attendance.mark", eventID, map[string]string{
		"user":   userID,
		"status": string(in.Status),
	}, now)

	return rec, nil
}

// BulkRow is one entry of a bulk mark request.
type BulkRow struct {
	UserID string                 `json:"user_id"`
	Status types.AttendanceStatus `json:"status"`
	Notes  string                 `json:"notes,omitempty"`
}

// BulkFailure reports one row that could not be applied.
type BulkFailure struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// BulkResult summarizes a bulk mark. Successful counts newly created
// records, Updated counts records transitioned in place.
type BulkResult struct {
	Successful int           `json:"successful"`
	Updated    int           `json:"updated"`
	Failed     int           `json:"failed"`
	Failures   []BulkFailure `json:"failures,omitempty"`
}

// BulkMark applies Mark per row independently: one bad row never aborts the
// batch, and each row's write is atomic while the batch as a whole is not.
func (r *Recorder) BulkMark(ctx context.Context, eventID string, rows []BulkRow, actor types.Actor) (BulkResult, error) {
	var res BulkResult
	for _, row := range rows {
		existed := r.recordExists(ctx, eventID, row.UserID)
		_, err := r.Mark(ctx, eventID, row.UserID, MarkInput{Status: row.Status, Notes: row.Notes}, actor)
		if err != nil {
			res.Failed++
			res.Failures = append(res.Failures, BulkFailure{UserID: row.UserID, Reason: err.Error()})
			continue
		}
		if existed {
			res.Updated++
		} else {
			res.Successful++
		}
	}

	r.audit.record(ctx, actor, "attendance.bulk_mark", eventID, map[string]string{
		"rows": strconv.Itoa(len(rows)), "successful": strconv.Itoa(res.Successful),
		"updated": strconv.Itoa(res.Updated), "failed": strconv.Itoa(res.Failed),
	}, r.clock.Now())
	return res, nil
}

// MarkUnmarkedAsAbsent creates absent records for every expected participant
// still lacking one. It refuses to run against a CLOSED event — the closure
// process uses finalizeAbsentees directly.
func (r *Recorder) MarkUnmarkedAsAbsent(ctx context.Context, eventID string, actor types.Actor) (int, error) {
	ev, err := r.events.Get(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if ev.Status == types.StatusClosed {
		return 0, &types.RuleViolationError{Rule: "event_closed", Detail: "event " + eventID + " is closed"}
	}
	if !authz.CanModifyEvent(actor, ev) {
		return 0, &types.ForbiddenError{ActorID: actor.ID, Capability: "attendance.mark_absent"}
	}
	return r.finalizeAbsentees(ctx, ev, actor)
}

// finalizeAbsentees is the closure-process path: it may write against a
// CLOSED event and is idempotent — a pair that already has a record is left
// untouched, so re-running produces the identical record set.
func (r *Recorder) finalizeAbsentees(ctx context.Context, ev *types.Event, actor types.Actor) (int, error) {
	now := r.clock.Now()
	created := 0
	for _, userID := range ev.ExpectedParticipants {
		_, wasCreated, err := r.attendance.CreateOrUpdate(ctx, ev.ID, userID, func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
			if existing != nil {
				return nil, nil // already marked; leave untouched
			}
			rec := newRecord(ev.ID, userID, MarkInput{
				Status: types.AttendanceAbsent,
				Notes:  autoClosureNote,
			}, actor.ID, now)
			return rec, nil
		})
		if err != nil {
			return created, err
		}
		if wasCreated {
			created++
			metrics.AttendanceMarks.WithLabelValues(string(types.AttendanceAbsent)).Inc()
		}
	}

	r.recompute(ctx, ev.ID)
	if created > 0 {
		r.audit.record(ctx, actor, "attendance.auto_absent", ev.ID, map[string]string{
			"created": strconv.Itoa(created),
		}, now)
	}
	return created, nil
}

// History returns the append-only transition history for one record.
func (r *Recorder) History(ctx context.Context, eventID, userID string) ([]types.AttendanceChange, error) {
	rec, err := r.attendance.Get(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return rec.History, nil
}

// checkWindow enforces the markable window: STARTED/ACTIVE, UPCOMING past
// its start, or COMPLETED within the late-marking window. CLOSED and the
// pre-publication states are rejected.
func (r *Recorder) checkWindow(ev *types.Event, now time.Time) error {
	switch ev.Status {
	case types.StatusStarted, types.StatusActive:
		return nil
	case types.StatusUpcoming:
		if !now.Before(ev.Start) {
			return nil
		}
		return &types.RuleViolationError{Rule: "mark_window", Detail: "event has not started yet"}
	case types.StatusCompleted:
		if !now.After(ev.End.Add(r.autoCloseOffset)) {
			return nil
		}
		return &types.RuleViolationError{Rule: "mark_window", Detail: "late-marking window has passed"}
	case types.StatusClosed:
		return &types.RuleViolationError{Rule: "event_closed", Detail: "event " + ev.ID + " is closed"}
	default:
		return &types.RuleViolationError{Rule: "mark_window", Detail: "event is not open for attendance (" + string(ev.Status) + ")"}
	}
}

func (r *Recorder) recordExists(ctx context.Context, eventID, userID string) bool {
	_, err := r.attendance.Get(ctx, eventID, userID)
	return err == nil
}

func (r *Recorder) recompute(ctx context.Context, eventID string) {
	if _, err := r.aggregator.Recompute(ctx, eventID); err != nil {
		r.logger.Printf("summary recompute failed event=%s: %v", eventID, err)
	}
}

// newRecord builds a record for a first mark, including the initial
// pending -> status history entry and the arrival time when applicable.
func newRecord(eventID, userID string, in MarkInput, markedBy string, now time.Time) *types.AttendanceRecord {
	rec := &types.AttendanceRecord{
		EventID:   eventID,
		UserID:    userID,
		Status:    in.Status,
		MarkedBy:  markedBy,
		MarkedAt:  now,
		Notes:     in.Notes,
		Location:  in.Location,
		CreatedAt: now,
		History: []types.AttendanceChange{
			{From: types.AttendancePending, To: in.Status, ChangedBy: markedBy, ChangedAt: now},
		},
	}
	if in.Status == types.AttendancePresent || in.Status == types.AttendanceLate {
		t := now
		rec.ArrivalTime = &t
	}
	return rec
}

// applyMark transitions an existing record in place. A status change appends
// to the history; re-marking with the same status only refreshes metadata.
func applyMark(rec *types.AttendanceRecord, in MarkInput, markedBy string, now time.Time) {
	if rec.Status != in.Status {
		rec.History = append(rec.History, types.AttendanceChange{
			From: rec.Status, To: in.Status, ChangedBy: markedBy, ChangedAt: now,
		})
		rec.Status = in.Status
	}
	rec.MarkedBy = markedBy
	rec.MarkedAt = now
	if in.Notes != "" {
		rec.Notes = in.Notes
	}
	if in.Location != "" {
		rec.Location = in.Location
	}
	if rec.ArrivalTime == nil && (in.Status == types.AttendancePresent || in.Status == types.AttendanceLate) {
		t := now
		rec.ArrivalTime = &t
	}
}

