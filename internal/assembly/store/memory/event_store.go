package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// EventStore is a mutex-guarded in-memory event store for tests and dev
// environments. Copies are handed out on every read so callers can never
// mutate stored state behind the lock's back.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]*types.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]*types.Event)}
}

func (s *EventStore) Create(_ context.Context, ev *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return &types.ConflictError{Reason: "duplicate_instance", BlockingEventID: ev.ID}
	}
	s.events[ev.ID] = copyEvent(ev)
	return nil
}

func (s *EventStore) Get(_ context.Context, id string) (*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, &types.NotFoundError{Resource: "event", ID: id}
	}
	return copyEvent(ev), nil
}

func (s *EventStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return &types.NotFoundError{Resource: "event", ID: id}
	}
	delete(s.events, id)
	return nil
}

func (s *EventStore) TransitionStatus(_ context.Context, id string, from, to types.EventStatus, mutate func(*types.Event)) (*types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, &types.NotFoundError{Resource: "event", ID: id}
	}
	if ev.Status != from {
		return nil, &types.ConflictError{Reason: "stale_status", BlockingEventID: id}
	}
	next := copyEvent(ev)
	next.Status = to
	if mutate != nil {
		mutate(next)
	}
	next.UpdatedAt = time.Now().UTC()
	s.events[id] = next
	return copyEvent(next), nil
}

func (s *EventStore) AddActualParticipant(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return &types.NotFoundError{Resource: "event", ID: id}
	}
	if ev.IsActual(userID) {
		return nil
	}
	ev.ActualParticipants = append(ev.ActualParticipants, userID)
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *EventStore) SetSummary(_ context.Context, id string, sum types.AttendanceSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return &types.NotFoundError{Resource: "event", ID: id}
	}
	ev.Summary = sum
	ev.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *EventStore) SetReminderSent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return &types.NotFoundError{Resource: "event", ID: id}
	}
	ev.ReminderSent = true
	return nil
}

func (s *EventStore) ListOverlapping(_ context.Context, start, end time.Time) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Event
	for _, ev := range s.events {
		if start.Before(ev.End) && end.After(ev.Start) {
			out = append(out, copyEvent(ev))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *EventStore) ListByParent(_ context.Context, parentID string) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Event
	for _, ev := range s.events {
		if ev.ParentEventID == parentID {
			out = append(out, copyEvent(ev))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *EventStore) ListDueForClosure(_ context.Context, now time.Time, def time.Duration) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Event
	for _, ev := range s.events {
		if ev.Status.Terminal() {
			continue
		}
		if !ev.CloseDue(def).After(now) {
			out = append(out, copyEvent(ev))
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *EventStore) ListNeedingReminder(_ context.Context, from, until time.Time) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.Event
	for _, ev := range s.events {
		if ev.Status != types.StatusUpcoming || ev.ReminderSent {
			continue
		}
		if ev.Start.After(from) && !ev.Start.After(until) {
			out = append(out, copyEvent(ev))
		}
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(evs []*types.Event) {
	sort.Slice(evs, func(i, j int) bool { return evs[i].Start.Before(evs[j].Start) })
}

func copyEvent(ev *types.Event) *types.Event {
	cp := *ev
	cp.ExpectedParticipants = append([]string(nil), ev.ExpectedParticipants...)
	cp.ActualParticipants = append([]string(nil), ev.ActualParticipants...)
	if ev.Recurrence != nil {
		r := *ev.Recurrence
		r.DaysOfWeek = append([]time.Weekday(nil), ev.Recurrence.DaysOfWeek...)
		r.Exceptions = append([]time.Time(nil), ev.Recurrence.Exceptions...)
		cp.Recurrence = &r
	}
	if ev.CompletedAt != nil {
		t := *ev.CompletedAt
		cp.CompletedAt = &t
	}
	if ev.ClosedAt != nil {
		t := *ev.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
