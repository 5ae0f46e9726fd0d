package service

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	"github.com/fellowship-tools/assembly/server/internal/metrics"
)

// closerActor is the identity stamped on sweep-driven transitions and
// auto-absent records.
var closerActor = types.Actor{ID: "system:auto-closure", Role: types.RoleSuperAdmin}

// Closer drives time-based lifecycle progression: once an event's end plus
// its auto-close offset has passed, the sweep completes it, marks unmarked
// expected participants absent, and closes it. The sweep reloads every event
// before touching it and each step is a compare-and-swap, so repeat firing —
// or a concurrent manual close — degrades to a no-op rather than a double
// write. A synchronous catch-up sweep on Start covers events that came due
// while the process was down.
type Closer struct {
	events    store.EventStore
	lifecycle *Lifecycle
	notifier  Notifier
	clock     Clock
	logger    *log.Logger
	cron      *cron.Cron

	autoCloseOffset time.Duration
	reminderLead    time.Duration
	cronSpec        string
}

type CloserConfig struct {
	// CronSpec is the sweep cadence. Defaults to "@every 1m".
	CronSpec string
	// AutoCloseOffset is the default close delay for events without one.
	AutoCloseOffset time.Duration
	// ReminderLead is how far before start a reminder fires. 0 disables
	// reminders.
	ReminderLead time.Duration
}

func NewCloser(events store.EventStore, lifecycle *Lifecycle, notifier Notifier, clock Clock, logger *log.Logger, cfg CloserConfig) *Closer {
	spec := cfg.CronSpec
	if spec == "" {
		spec = "@every 1m"
	}
	off := cfg.AutoCloseOffset
	if off <= 0 {
		off = 3 * time.Hour
	}
	return &Closer{
		events:          events,
		lifecycle:       lifecycle,
		notifier:        notifier,
		clock:           clock,
		logger:          logger,
		autoCloseOffset: off,
		reminderLead:    cfg.ReminderLead,
		cronSpec:        spec,
	}
}

// Start runs the catch-up sweep synchronously, then schedules the periodic
// sweep. In-memory timers do not survive a restart; the catch-up pass is what
// makes closure restart-tolerant.
func (c *Closer) Start(ctx context.Context) error {
	if closed, err := c.Sweep(ctx); err != nil {
		c.logger.Printf("catch-up sweep error: %v", err)
	} else if closed > 0 {
		c.logger.Printf("catch-up sweep closed %d overdue event(s)", closed)
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.cronSpec, func() {
		if _, err := c.Sweep(context.Background()); err != nil {
			c.logger.Printf("sweep error: %v", err)
		}
	}); err != nil {
		return err
	}
	c.cron.Start()
	c.logger.Printf("auto-closure sweep started (cadence=%s, offset=%s)", c.cronSpec, c.autoCloseOffset)
	return nil
}

// Stop halts the periodic sweep and waits for an in-flight run to finish.
func (c *Closer) Stop() {
	if c.cron != nil {
		<-c.cron.Stop().Done()
	}
}

// Sweep finds every event whose close time has passed and drives it to
// CLOSED. A failure on one event is isolated; the rest of the sweep
// continues. Returns how many events reached CLOSED in this pass.
func (c *Closer) Sweep(ctx context.Context) (int, error) {
	now := c.clock.Now()

	due, err := c.events.ListDueForClosure(ctx, now, c.autoCloseOffset)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, snapshot := range due {
		ok, err := c.closeOne(ctx, snapshot.ID)
		if err != nil {
			metrics.SweepErrors.Inc()
			c.logger.Printf("sweep: closing event %s failed: %v", snapshot.ID, err)
			continue
		}
		if ok {
			closed++
			metrics.SweepClosures.Inc()
		}
	}

	if c.reminderLead > 0 {
		c.sendReminders(ctx, now)
	}
	return closed, nil
}

// closeOne reloads the event — never trusting the sweep's snapshot — and
// advances it along COMPLETED to CLOSED. Events already closed or deleted in
// the meantime are a no-op.
func (c *Closer) closeOne(ctx context.Context, eventID string) (bool, error) {
	ev, err := c.events.Get(ctx, eventID)
	if err != nil {
		if _, gone := err.(*types.NotFoundError); gone {
			return false, nil // deleted since the sweep listed it
		}
		return false, err
	}

	switch ev.Status {
	case types.StatusUpcoming, types.StatusStarted, types.StatusActive:
		ev, err = c.lifecycle.Transition(ctx, eventID, types.StatusCompleted, closerActor)
		if err != nil {
			if _, stale := err.(*types.ConflictError); stale {
				return false, nil // someone else moved it; next sweep re-checks
			}
			return false, err
		}
	case types.StatusDraft, types.StatusPublished:
		// Never published to participants; leave for manual cleanup.
		return false, nil
	case types.StatusClosed:
		return false, nil
	}

	if ev.Status == types.StatusCompleted || ev.Status == types.StatusCancelled {
		if _, err := c.lifecycle.Transition(ctx, eventID, types.StatusClosed, closerActor); err != nil {
			if _, stale := err.(*types.ConflictError); stale {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// sendReminders emits one reminder per UPCOMING event starting within the
// lead window. The ReminderSent latch keeps repeat sweeps quiet.
func (c *Closer) sendReminders(ctx context.Context, now time.Time) {
	upcoming, err := c.events.ListNeedingReminder(ctx, now, now.Add(c.reminderLead))
	if err != nil {
		c.logger.Printf("sweep: reminder query failed: %v", err)
		return
	}
	for _, ev := range upcoming {
		notify(ctx, c.notifier, c.logger, Notification{
			Kind: NotifyReminderDue, EventID: ev.ID, Title: ev.Title, At: now,
		})
		if err := c.events.SetReminderSent(ctx, ev.ID); err != nil {
			c.logger.Printf("sweep: reminder latch failed event=%s: %v", ev.ID, err)
			continue
		}
		metrics.RemindersSent.Inc()
	}
}
