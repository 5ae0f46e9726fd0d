package types

import "time"

type AttendanceStatus string

const (
	AttendancePending AttendanceStatus = "pending"
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

func ValidAttendanceStatus(s AttendanceStatus) bool {
	switch s {
	case AttendancePending, AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

// AttendanceChange is one entry in a record's append-only history.
type AttendanceChange struct {
	From      AttendanceStatus `json:"from"`
	To        AttendanceStatus `json:"to"`
	ChangedBy string           `json:"changed_by"`
	ChangedAt time.Time        `json:"changed_at"`
}

// AttendanceRecord tracks one participant's attendance for one event.
// Identity is the (EventID, UserID) pair; at most one record ever exists per
// pair. Records are never deleted, only transitioned.
type AttendanceRecord struct {
	EventID string           `json:"event_id"`
	UserID  string           `json:"user_id"`
	Status  AttendanceStatus `json:"status"`

	MarkedBy string    `json:"marked_by"`
	MarkedAt time.Time `json:"marked_at"`
	Notes    string    `json:"notes,omitempty"`
	Location string    `json:"location,omitempty"`

	// ArrivalTime is set the first time the status becomes present or late
	// and never changes afterwards.
	ArrivalTime *time.Time `json:"arrival_time,omitempty"`

	History []AttendanceChange `json:"history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
