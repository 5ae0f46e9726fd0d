package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store/sqlite"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

var recBase = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedRecordEvent(t *testing.T, events *sqlite.EventStore, id string) {
	t.Helper()
	ev := sampleEvent(id)
	ev.Recurrence = nil
	ev.IsRecurring = false
	if err := events.Create(context.Background(), ev); err != nil {
		t.Fatalf("seed event %s: %v", id, err)
	}
}

func TestAttendanceStore_CreateThenUpdate(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	events := sqlite.NewEventStore(conn, w)
	s := sqlite.NewAttendanceStore(conn, w)
	ctx := context.Background()
	seedRecordEvent(t, events, "ev-1")

	arrival := recBase.Add(5 * time.Minute)
	rec, created, err := s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		if existing != nil {
			t.Fatal("expected no existing record")
		}
		return &types.AttendanceRecord{
			EventID: "ev-1", UserID: "u-1", Status: types.AttendancePresent,
			MarkedBy: "clocker-1", MarkedAt: recBase, Notes: "front row",
			ArrivalTime: &arrival, CreatedAt: recBase,
			History: []types.AttendanceChange{
				{From: types.AttendancePending, To: types.AttendancePresent, ChangedBy: "clocker-1", ChangedAt: recBase},
			},
		}, nil
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if rec.Status != types.AttendancePresent {
		t.Errorf("status = %s", rec.Status)
	}

	// Second mark flips to late and appends history.
	rec, created, err = s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		if existing == nil {
			t.Fatal("expected existing record")
		}
		existing.History = append(existing.History, types.AttendanceChange{
			From: existing.Status, To: types.AttendanceLate,
			ChangedBy: "pastor-1", ChangedAt: recBase.Add(10 * time.Minute),
		})
		existing.Status = types.AttendanceLate
		existing.MarkedBy = "pastor-1"
		existing.MarkedAt = recBase.Add(10 * time.Minute)
		return existing, nil
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if created {
		t.Error("created = true on update")
	}

	got, err := s.Get(ctx, "ev-1", "u-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != types.AttendanceLate || got.MarkedBy != "pastor-1" {
		t.Errorf("got %s by %s", got.Status, got.MarkedBy)
	}
	if got.ArrivalTime == nil || !got.ArrivalTime.Equal(arrival) {
		t.Errorf("arrival = %v, want %v", got.ArrivalTime, arrival)
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	if got.History[1].From != types.AttendancePresent || got.History[1].To != types.AttendanceLate {
		t.Errorf("history[1] = %+v", got.History[1])
	}
}

func TestAttendanceStore_MutateNilSkipsWrite(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	events := sqlite.NewEventStore(conn, w)
	s := sqlite.NewAttendanceStore(conn, w)
	ctx := context.Background()
	seedRecordEvent(t, events, "ev-1")

	rec, created, err := s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("CreateOrUpdate: %v", err)
	}
	if created || rec != nil {
		t.Errorf("nil mutate result wrote something: created=%v rec=%v", created, rec)
	}
	if n, _ := s.CountByEvent(ctx, "ev-1"); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestAttendanceStore_MutateErrorAborts(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	events := sqlite.NewEventStore(conn, w)
	s := sqlite.NewAttendanceStore(conn, w)
	ctx := context.Background()
	seedRecordEvent(t, events, "ev-1")

	boom := errors.New("boom")
	_, _, err := s.CreateOrUpdate(ctx, "ev-1", "u-1", func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if n, _ := s.CountByEvent(ctx, "ev-1"); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestAttendanceStore_ListByEvent(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	events := sqlite.NewEventStore(conn, w)
	s := sqlite.NewAttendanceStore(conn, w)
	ctx := context.Background()
	seedRecordEvent(t, events, "ev-1")
	seedRecordEvent(t, events, "ev-2")

	mark := func(eventID, userID string, status types.AttendanceStatus) {
		_, _, err := s.CreateOrUpdate(ctx, eventID, userID, func(existing *types.AttendanceRecord) (*types.AttendanceRecord, error) {
			return &types.AttendanceRecord{
				EventID: eventID, UserID: userID, Status: status,
				MarkedBy: "clocker-1", MarkedAt: recBase, CreatedAt: recBase,
			}, nil
		})
		if err != nil {
			t.Fatalf("mark %s/%s: %v", eventID, userID, err)
		}
	}
	mark("ev-1", "u-2", types.AttendancePresent)
	mark("ev-1", "u-1", types.AttendanceAbsent)
	mark("ev-2", "u-1", types.AttendancePresent)

	got, err := s.ListByEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if got[0].UserID != "u-1" || got[1].UserID != "u-2" {
		t.Errorf("order = %s, %s", got[0].UserID, got[1].UserID)
	}

	if n, _ := s.CountByEvent(ctx, "ev-1"); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestAttendanceStore_GetMissing(t *testing.T) {
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	s := sqlite.NewAttendanceStore(conn, w)

	_, err := s.Get(context.Background(), "ev-1", "u-1")
	var nf *types.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}
