package service

import (
	"context"

	"github.com/fellowship-tools/assembly/server/internal/assembly/store"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// Aggregator maintains the denormalized attendance summary on events. The
// summary is a last-writer-wins read cache; per-user status always lives in
// the attendance records, so recomputing under concurrent marking is safe.
type Aggregator struct {
	events     store.EventStore
	attendance store.AttendanceStore
}

func NewAggregator(events store.EventStore, attendance store.AttendanceStore) *Aggregator {
	return &Aggregator{events: events, attendance: attendance}
}

// Recompute groups the event's records by status and writes the resulting
// summary onto the event. attendanceRate = (present+late)/total*100.
func (g *Aggregator) Recompute(ctx context.Context, eventID string) (types.AttendanceSummary, error) {
	records, err := g.attendance.ListByEvent(ctx, eventID)
	if err != nil {
		return types.AttendanceSummary{}, err
	}

	var sum types.AttendanceSummary
	for _, rec := range records {
		switch rec.Status {
		case types.AttendancePresent:
			sum.Present++
		case types.AttendanceAbsent:
			sum.Absent++
		case types.AttendanceLate:
			sum.Late++
		case types.AttendanceExcused:
			sum.Excused++
		}
	}
	sum.Total = len(records)
	if sum.Total > 0 {
		sum.AttendanceRate = float64(sum.Present+sum.Late) / float64(sum.Total) * 100
	}

	if err := g.events.SetSummary(ctx, eventID, sum); err != nil {
		return sum, err
	}
	return sum, nil
}
