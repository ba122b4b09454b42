package schedule

import (
	"sort"
	"time"
)

// Interval is the closed-open span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Valid() bool {
	return !i.Start.IsZero() && i.End.After(i.Start)
}

// Overlaps treats touching endpoints as disjoint.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Item pairs an interval with the id of what occupies it.
type Item struct {
	ID       string
	Interval Interval
}

// IntervalIndex answers overlap queries in O(log n) over a fixed set of
// intervals: items sorted by start, plus the running maximum of ends.
type IntervalIndex struct {
	items  []Item
	maxEnd []time.Time
}

func NewIntervalIndex(items []Item) *IntervalIndex {
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(a, b int) bool {
		return sorted[a].Interval.Start.Before(sorted[b].Interval.Start)
	})

	maxEnd := make([]time.Time, len(sorted))
	for i, it := range sorted {
		maxEnd[i] = it.Interval.End
		if i > 0 && maxEnd[i-1].After(maxEnd[i]) {
			maxEnd[i] = maxEnd[i-1]
		}
	}
	return &IntervalIndex{items: sorted, maxEnd: maxEnd}
}

// FirstOverlap returns an item overlapping c, if any.
func (x *IntervalIndex) FirstOverlap(c Interval) (Item, bool) {
	// Only items starting before c.End can overlap.
	n := sort.Search(len(x.items), func(i int) bool {
		return !x.items[i].Interval.Start.Before(c.End)
	})
	if n == 0 || !x.maxEnd[n-1].After(c.Start) {
		return Item{}, false
	}
	// maxEnd is non-decreasing: the first prefix whose max end passes
	// c.Start ends with an item that itself ends after c.Start.
	i := sort.Search(n, func(i int) bool {
		return x.maxEnd[i].After(c.Start)
	})
	return x.items[i], true
}

func (x *IntervalIndex) Overlaps(c Interval) bool {
	_, ok := x.FirstOverlap(c)
	return ok
}
