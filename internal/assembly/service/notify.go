package service

import (
	"context"
	"log"
	"time"
)

const (
	NotifyReminderDue = "event_reminder_due"
	NotifyEventClosed = "event_closed"
)

// Notification is a fire-and-forget signal to an external gateway. Delivery
// mechanics (SMS, email, push) are entirely outside the engine.
type Notification struct {
	Kind    string    `json:"kind"`
	EventID string    `json:"event_id"`
	Title   string    `json:"title"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the server log. It is the default
// gateway in dev and a reasonable fallback when none is configured.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Notify(_ context.Context, msg Notification) error {
	n.Logger.Printf("notify kind=%s event=%s title=%q", msg.Kind, msg.EventID, msg.Title)
	return nil
}
