package types

import "time"

type Frequency string

const (
	FreqDaily    Frequency = "daily"
	FreqWeekly   Frequency = "weekly"
	FreqBiWeekly Frequency = "bi-weekly"
	FreqMonthly  Frequency = "monthly"
)

// RecurrenceRule describes how a base event repeats. Expansion stops at the
// first of EndDate, Count, or the engine's hard safety ceiling.
type RecurrenceRule struct {
	Frequency Frequency `json:"frequency"`
	// Interval is the step between repetitions in units of Frequency.
	// 0 is treated as 1.
	Interval   int            `json:"interval,omitempty"`
	DaysOfWeek []time.Weekday `json:"days_of_week,omitempty"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
	Count      int            `json:"count,omitempty"`
	// Exceptions are calendar dates to skip; time-of-day is ignored.
	Exceptions []time.Time `json:"exceptions,omitempty"`
}

func ValidFrequency(f Frequency) bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqBiWeekly, FreqMonthly:
		return true
	}
	return false
}
