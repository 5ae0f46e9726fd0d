package service_test

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/service"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store/memory"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// t0 is the fixed "now" every test starts from.
var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []service.Notification
}

func (n *captureNotifier) Notify(_ context.Context, msg service.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) byKind(kind string) []service.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []service.Notification
	for _, msg := range n.sent {
		if msg.Kind == kind {
			out = append(out, msg)
		}
	}
	return out
}

// env wires the full engine over in-memory stores with a controllable clock.
type env struct {
	clock      *fakeClock
	events     *memory.EventStore
	attendance *memory.AttendanceStore
	audits     *memory.AuditStore
	notes      *captureNotifier

	aggregator *service.Aggregator
	recorder   *service.Recorder
	lifecycle  *service.Lifecycle
	closer     *service.Closer
}

const testAutoClose = 3 * time.Hour

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		clock:      &fakeClock{t: t0},
		events:     memory.NewEventStore(),
		attendance: memory.NewAttendanceStore(),
		audits:     memory.NewAuditStore(),
		notes:      &captureNotifier{},
	}
	logger := log.New(io.Discard, "", 0)

	e.aggregator = service.NewAggregator(e.events, e.attendance)
	e.recorder = service.NewRecorder(e.events, e.attendance, e.aggregator, e.audits, e.clock, logger,
		service.RecorderConfig{AutoCloseOffset: testAutoClose})
	detector := service.NewConflictDetector(e.events)
	e.lifecycle = service.NewLifecycle(e.events, e.attendance, detector, e.recorder, e.aggregator,
		e.audits, e.notes, e.clock, logger, service.LifecycleConfig{})
	e.closer = service.NewCloser(e.events, e.lifecycle, e.notes, e.clock, logger, service.CloserConfig{
		AutoCloseOffset: testAutoClose,
		ReminderLead:    time.Hour,
	})
	return e
}

var (
	deptScope = types.Scope{Type: types.ScopeDepartment, TargetID: "ushers"}

	pastor = types.Actor{ID: "pastor-1", Role: types.RolePastor,
		ScopeMemberships: []types.Scope{deptScope}}
	admin   = types.Actor{ID: "admin-1", Role: types.RoleSuperAdmin}
	clocker = types.Actor{ID: "clocker-1", Role: types.RoleClocker,
		ScopeMemberships: []types.Scope{deptScope}}
)

// seedEvent inserts an event directly at the given status, bypassing the
// lifecycle service. Start/end are offsets from t0.
func (e *env) seedEvent(t *testing.T, id string, status types.EventStatus, startOff, endOff time.Duration, mut func(*types.Event)) *types.Event {
	t.Helper()
	ev := &types.Event{
		ID:                   id,
		Title:                "Test Gathering " + id,
		Start:                t0.Add(startOff),
		End:                  t0.Add(endOff),
		Status:               status,
		Scope:                deptScope,
		CreatedBy:            pastor.ID,
		ExpectedParticipants: []string{"u-1", "u-2", "u-3"},
		CreatedAt:            t0,
		UpdatedAt:            t0,
	}
	if mut != nil {
		mut(ev)
	}
	if err := e.events.Create(context.Background(), ev); err != nil {
		t.Fatalf("seed event %s: %v", id, err)
	}
	return ev
}
