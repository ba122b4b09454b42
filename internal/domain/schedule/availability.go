// Package schedule models a provider's open hours and booked intervals.
package schedule

import "time"

const (
	allWeekdays uint8  = 1<<7 - 1
	allHours    uint32 = 1<<24 - 1

	// maxSpan bounds the hour walk in Covers.
	maxSpan = 366 * 24 * time.Hour
)

// AvailabilityRule holds the open weekdays (bit n = time.Weekday(n)) and
// open hours of the day (bit n = hour n) of a provider.
type AvailabilityRule struct {
	Weekdays uint8  `json:"weekdays"`
	Hours    uint32 `json:"hours"`
}

// NewRule builds a rule from weekday and hour lists. Out of range values
// are ignored.
func NewRule(weekdays []time.Weekday, hours []int) AvailabilityRule {
	var r AvailabilityRule
	for _, d := range weekdays {
		if d >= time.Sunday && d <= time.Saturday {
			r.Weekdays |= 1 << uint(d)
		}
	}
	for _, h := range hours {
		if h >= 0 && h < 24 {
			r.Hours |= 1 << uint(h)
		}
	}
	return r
}

// Unrestricted opens every hour of every day.
func Unrestricted() AvailabilityRule {
	return AvailabilityRule{Weekdays: allWeekdays, Hours: allHours}
}

func (r AvailabilityRule) WeekdayActive(d time.Weekday) bool {
	return r.Weekdays&(1<<uint(d)) != 0
}

func (r AvailabilityRule) HourActive(h int) bool {
	if h < 0 || h > 23 {
		return false
	}
	return r.Hours&(1<<uint(h)) != 0
}

func (r AvailabilityRule) ActiveWeekdays() []time.Weekday {
	out := []time.Weekday{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if r.WeekdayActive(d) {
			out = append(out, d)
		}
	}
	return out
}

func (r AvailabilityRule) InactiveWeekdays() []time.Weekday {
	out := []time.Weekday{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if !r.WeekdayActive(d) {
			out = append(out, d)
		}
	}
	return out
}

// EarliestHour is the first active hour scanning up from midnight.
func (r AvailabilityRule) EarliestHour() (int, bool) {
	for h := 0; h < 24; h++ {
		if r.HourActive(h) {
			return h, true
		}
	}
	return 0, false
}

// LatestHour is the last active hour scanning down from 23.
func (r AvailabilityRule) LatestHour() (int, bool) {
	for h := 23; h >= 0; h-- {
		if r.HourActive(h) {
			return h, true
		}
	}
	return 0, false
}

// Covers reports whether [start, end) lies inside open hours when read on
// the wall clock of loc: every clock hour the interval touches must be an
// active hour on an active weekday.
func (r AvailabilityRule) Covers(start, end time.Time, loc *time.Location) bool {
	if !end.After(start) || end.Sub(start) > maxSpan {
		return false
	}
	if loc == nil {
		loc = time.UTC
	}

	s := start.In(loc)
	cur := time.Date(s.Year(), s.Month(), s.Day(), s.Hour(), 0, 0, 0, loc)
	for cur.Before(end) {
		if !r.WeekdayActive(cur.Weekday()) || !r.HourActive(cur.Hour()) {
			return false
		}
		cur = cur.Add(time.Hour)
	}
	return true
}
