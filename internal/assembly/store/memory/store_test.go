package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store/memory"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *memory.EventStore, id string, status types.EventStatus, start, end time.Time) {
	t.Helper()
	err := s.Create(context.Background(), &types.Event{
		ID: id, Title: id, Status: status, Start: start, End: end,
		Scope: types.Scope{Type: types.ScopeAll},
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestEventStore_TransitionStatus_StaleWriteRejected(t *testing.T) {
	s := memory.NewEventStore()
	seed(t, s, "ev-1", types.StatusUpcoming, base, base.Add(time.Hour))

	// The caller read "active" but the event is still upcoming.
	_, err := s.TransitionStatus(context.Background(), "ev-1", types.StatusActive, types.StatusCompleted, nil)
	var cerr *types.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if cerr.Reason != "stale_status" {
		t.Errorf("reason = %q, want stale_status", cerr.Reason)
	}
}

func TestEventStore_TransitionStatus_ConcurrentSingleWinner(t *testing.T) {
	s := memory.NewEventStore()
	seed(t, s, "ev-1", types.StatusCompleted, base, base.Add(time.Hour))

	const n = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.TransitionStatus(context.Background(), "ev-1",
				types.StatusCompleted, types.StatusClosed, nil)
			if err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Errorf("expected exactly 1 winning transition, got %d", won)
	}
}

func TestEventStore_ListOverlapping_HalfOpen(t *testing.T) {
	s := memory.NewEventStore()
	ctx := context.Background()
	seed(t, s, "ev-1", types.StatusUpcoming, base, base.Add(time.Hour)) // [10:00,11:00)

	overlapping, err := s.ListOverlapping(ctx, base.Add(30*time.Minute), base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("ListOverlapping: %v", err)
	}
	if len(overlapping) != 1 {
		t.Errorf("[10:30,11:30) should overlap [10:00,11:00), got %d", len(overlapping))
	}

	adjacent, err := s.ListOverlapping(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ListOverlapping: %v", err)
	}
	if len(adjacent) != 0 {
		t.Errorf("[11:00,12:00) must not overlap [10:00,11:00), got %d", len(adjacent))
	}
}

func TestEventStore_ListDueForClosure_UsesDefaultOffset(t *testing.T) {
	s := memory.NewEventStore()
	ctx := context.Background()
	seed(t, s, "due", types.StatusActive, base, base.Add(time.Hour))
	seed(t, s, "not-due", types.StatusActive, base, base.Add(4*time.Hour))
	seed(t, s, "terminal", types.StatusClosed, base, base.Add(time.Hour))

	now := base.Add(4*time.Hour + time.Minute) // due's end+3h has passed
	due, err := s.ListDueForClosure(ctx, now, 3*time.Hour)
	if err != nil {
		t.Fatalf("ListDueForClosure: %v", err)
	}
	if len(due) != 1 || due[0].ID != "due" {
		t.Errorf("due = %+v, want just 'due'", due)
	}
}

func TestAttendanceStore_ConcurrentCreateOrUpdate_OneRecord(t *testing.T) {
	s := memory.NewAttendanceStore()
	ctx := context.Background()

	const n = 32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
				if existing == nil {
					return &types.AttendanceRecord{
						EventID: "ev-1", UserID: "u-1",
						Status: types.AttendancePresent,
					}, nil
				}
				existing.Status = types.AttendancePresent
				return existing, nil
			})
			if err != nil {
				t.Errorf("CreateOrUpdate: %v", err)
			}
		}()
	}
	wg.Wait()

	records, err := s.ListByEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record under concurrency, got %d", len(records))
	}
}

func TestAttendanceStore_MutateNilSkipsWrite(t *testing.T) {
	s := memory.NewAttendanceStore()
	ctx := context.Background()

	rec, created, err := s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if created || rec != nil {
		t.Errorf("nil mutate result must not create anything, got created=%v rec=%v", created, rec)
	}
	if n, _ := s.CountByEvent(ctx, "ev-1"); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}
