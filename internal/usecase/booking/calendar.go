package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BruksfildServices01/marketplace-exchange/internal/domain/schedule"
	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/timezone"
)

type CalendarEntry struct {
	Title        string `json:"title"`
	Start        string `json:"start"`
	End          string `json:"end"`
	ReferenceURL string `json:"referenceUrl"`
}

// BuildCalendarFeed lists the accepted bookings the person takes part in,
// as provider or as requester, on the person's wall clock.
func (r *Resolver) BuildCalendarFeed(ctx context.Context, providerID uint) ([]CalendarEntry, error) {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := timezone.Location(p.Timezone)

	rows, err := r.bookings.ListCalendar(ctx, providerID)
	if err != nil {
		return nil, err
	}

	names := map[uint]string{}
	out := make([]CalendarEntry, 0, len(rows))
	for _, row := range rows {
		name, ok := names[row.RequesterID]
		if !ok {
			if requester, err := r.catalog.Person(ctx, row.RequesterID); err == nil {
				name = requester.DisplayName
			}
			names[row.RequesterID] = name
		}

		out = append(out, CalendarEntry{
			Title:        name,
			Start:        row.StartAt.In(loc).Format(Layout),
			End:          row.EndAt.In(loc).Format(Layout),
			ReferenceURL: fmt.Sprintf("%s/people/%d/transactions/%s", r.baseURL, providerID, row.TransactionID),
		})
	}
	return out, nil
}

type WeeklyMask struct {
	Configured       bool  `json:"configured"`
	Available        bool  `json:"available"`
	ActiveWeekdays   []int `json:"activeWeekdays"`
	InactiveWeekdays []int `json:"inactiveWeekdays"`
	EarliestHour     *int  `json:"earliestHour"`
	LatestHour       *int  `json:"latestHour"`
}

func weekdays(days []time.Weekday) []int {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return out
}

// WeeklyMask summarises the provider's open hours for date pickers. With
// no active hour the bounds stay nil and the provider is unavailable.
func (r *Resolver) WeeklyMask(ctx context.Context, providerID uint) (WeeklyMask, error) {
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return WeeklyMask{}, err
	}
	rule, configured := p.Availability()

	m := WeeklyMask{
		Configured:       configured,
		ActiveWeekdays:   weekdays(rule.ActiveWeekdays()),
		InactiveWeekdays: weekdays(rule.InactiveWeekdays()),
	}
	if h, ok := rule.EarliestHour(); ok {
		m.EarliestHour = &h
	}
	if h, ok := rule.LatestHour(); ok {
		m.LatestHour = &h
	}
	m.Available = m.EarliestHour != nil && len(m.ActiveWeekdays) > 0
	return m, nil
}

type Window struct {
	Start         string `json:"start"`
	End           string `json:"end"`
	TransactionID string `json:"transactionId"`
}

// DisabledWindows lists the spans where a slot of the given length cannot
// start: every blocking booking widened by one slot before its start.
func (r *Resolver) DisabledWindows(
	ctx context.Context,
	providerID uint,
	slot time.Duration,
	from time.Time,
	to time.Time,
) ([]Window, error) {

	if slot <= 0 {
		return nil, domain.ErrValidation("invalid_slot", "slot length must be positive")
	}
	p, err := r.provider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	loc := timezone.Location(p.Timezone)

	blocking, err := r.bookings.ListBlocking(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	out := make([]Window, 0, len(blocking))
	for _, b := range blocking {
		iv := schedule.Interval{Start: b.StartAt.Add(-slot), End: b.EndAt}
		out = append(out, Window{
			Start:         iv.Start.In(loc).Format(Layout),
			End:           iv.End.In(loc).Format(Layout),
			TransactionID: b.TransactionID,
		})
	}
	return out, nil
}

// UpdateAvailability replaces the person's open hours and returns the new
// weekly mask. Weekdays are 0 (Sunday) to 6, hours 0 to 23.
func (r *Resolver) UpdateAvailability(
	ctx context.Context,
	personID uint,
	days []int,
	hours []int,
) (WeeklyMask, error) {

	wd := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return WeeklyMask{}, domain.ErrValidation("invalid_weekday", fmt.Sprintf("weekday %d is out of range", d))
		}
		wd = append(wd, time.Weekday(d))
	}
	for _, h := range hours {
		if h < 0 || h > 23 {
			return WeeklyMask{}, domain.ErrValidation("invalid_hour", fmt.Sprintf("hour %d is out of range", h))
		}
	}

	err := r.catalog.SaveAvailability(ctx, personID, schedule.NewRule(wd, hours))
	if errors.Is(err, domain.ErrRecordNotFound) {
		return WeeklyMask{}, domain.ErrNotFound("provider_not_found", fmt.Sprintf("provider %d not found", personID))
	}
	if err != nil {
		return WeeklyMask{}, err
	}
	return r.WeeklyMask(ctx, personID)
}
