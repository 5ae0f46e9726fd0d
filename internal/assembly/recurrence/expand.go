// Package recurrence expands a base event's schedule into the bounded,
// ordered instance sequence its recurrence rule describes. Expansion is pure:
// the same schedule and rule always yield the same sequence, and nothing here
// touches a store — de-duplication before persisting is the caller's job.
package recurrence

import (
	"time"

	"github.com/teambition/rrule-go"

	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
)

// DefaultCeiling bounds how many instances a single rule may produce, so a
// malformed rule (no end date, no count) cannot run away.
const DefaultCeiling = 365

// Instance is one generated occurrence. The caller stamps ParentEventID and
// the rest of the event fields when persisting.
type Instance struct {
	Start time.Time
	End   time.Time
}

// Expand generates every instance of rule strictly after start, preserving
// the base duration (end - start). It stops at the first of: rule.EndDate
// passed, rule.Count instances produced, or ceiling instances produced.
// Dates listed in rule.Exceptions are skipped without counting.
func Expand(start, end time.Time, rule types.RecurrenceRule, ceiling int) ([]Instance, error) {
	if !types.ValidFrequency(rule.Frequency) {
		return nil, &types.ValidationError{Field: "recurrence.frequency", Reason: "unknown frequency"}
	}
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	interval := rule.Interval
	if interval <= 0 {
		interval = 1
	}

	var freq rrule.Frequency
	switch rule.Frequency {
	case types.FreqDaily:
		freq = rrule.DAILY
	case types.FreqWeekly:
		freq = rrule.WEEKLY
	case types.FreqBiWeekly:
		freq = rrule.WEEKLY
		interval *= 2
	case types.FreqMonthly:
		freq = rrule.MONTHLY
	}

	opt := rrule.ROption{
		Freq:     freq,
		Interval: interval,
		Dtstart:  start,
	}
	if freq == rrule.WEEKLY && len(rule.DaysOfWeek) > 0 {
		for _, d := range rule.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, toRRuleWeekday(d))
		}
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, &types.ValidationError{Field: "recurrence", Reason: err.Error()}
	}

	limit := ceiling
	if rule.Count > 0 && rule.Count < limit {
		limit = rule.Count
	}

	duration := end.Sub(start)
	loc := start.Location()

	// Exceptions can only swallow a bounded number of occurrences each, so a
	// scan cap keeps the iterator from spinning on a pathological rule.
	maxScan := limit + len(rule.Exceptions)*7 + 1

	out := make([]Instance, 0, limit)
	next := r.Iterator()
	for scanned := 0; scanned < maxScan; scanned++ {
		occ, ok := next()
		if !ok {
			break
		}
		if !occ.After(start) {
			continue
		}
		if rule.EndDate != nil && occ.After(*rule.EndDate) {
			break
		}
		if excepted(occ, rule.Exceptions, loc) {
			continue
		}
		out = append(out, Instance{Start: occ, End: occ.Add(duration)})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// excepted reports whether occ falls on one of the exception dates.
// Comparison is by calendar date in the base event's location.
func excepted(occ time.Time, exceptions []time.Time, loc *time.Location) bool {
	oy, om, od := occ.In(loc).Date()
	for _, ex := range exceptions {
		ey, em, ed := ex.In(loc).Date()
		if oy == ey && om == em && od == ed {
			return true
		}
	}
	return false
}

func toRRuleWeekday(d time.Weekday) rrule.Weekday {
	switch d {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
