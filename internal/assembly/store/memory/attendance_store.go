package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

type recordKey struct {
	eventID string
	userID  string
}

// AttendanceStore keeps attendance records in a map keyed by (event, user).
// The single mutex around CreateOrUpdate makes each pair's read-mutate-write
// atomic, which is what upholds the at-most-one-record invariant here.
type AttendanceStore struct {
	mu      sync.RWMutex
	records map[recordKey]*types.AttendanceRecord
}

func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{records: make(map[recordKey]*types.AttendanceRecord)}
}

func (s *AttendanceStore) Get(_ context.Context, eventID, userID string) (*types.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey{eventID, userID}]
	if !ok {
		return nil, &types.NotFoundError{Resource: "attendance record", ID: eventID + "/" + userID}
	}
	return copyRecord(rec), nil
}

func (s *AttendanceStore) ListByEvent(_ context.Context, eventID string) ([]*types.AttendanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*types.AttendanceRecord
	for k, rec := range s.records {
		if k.eventID == eventID {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *AttendanceStore) CountByEvent(_ context.Context, eventID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for k := range s.records {
		if k.eventID == eventID {
			n++
		}
	}
	return n, nil
}

func (s *AttendanceStore) CreateOrUpdate(_ context.Context, eventID, userID string, mutate store.MutateRecordFn) (*types.AttendanceRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{eventID, userID}
	var existing *types.AttendanceRecord
	if rec, ok := s.records[key]; ok {
		existing = copyRecord(rec)
	}

	next, err := mutate(existing)
	if err != nil {
		return nil, false, err
	}
	if next == nil {
		// Mutate declined to write; report the unchanged record.
		return existing, false, nil
	}

	created := existing == nil
	if created && next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now().UTC()
	}
	next.EventID = eventID
	next.UserID = userID
	s.records[key] = copyRecord(next)
	return copyRecord(next), created, nil
}

func copyRecord(rec *types.AttendanceRecord) *types.AttendanceRecord {
	cp := *rec
	cp.History = append([]types.AttendanceChange(nil), rec.History...)
	if rec.ArrivalTime != nil {
		t := *rec.ArrivalTime
		cp.ArrivalTime = &t
	}
	return &cp
}
