package domain

import (
	"sort"
	"time"
)

// Interval is half-open: Start is included, End is excluded. Two intervals
// that touch at an endpoint do not overlap.
type Interval struct {
	Start time.Time
	End   time.Time
}

func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (a Interval) Duration() time.Duration {
	return a.End.Sub(a.Start)
}

// MergeIntervals coalesces the input into a sorted, disjoint list. Touching
// intervals are merged: a gap of zero length is no gap.
func MergeIntervals(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}

	sorted := make([]Interval, len(in))
	copy(sorted, in)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	out := make([]Interval, 0, len(sorted))
	out = append(out, sorted[0])
	for _, iv := range sorted[1:] {
		last := &out[len(out)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}
	return out
}

// Gaps returns the maximal free intervals inside [windowStart, windowEnd)
// given a merged, sorted busy list, dropping gaps shorter than minDuration.
// An empty busy list yields the whole window.
func Gaps(merged []Interval, windowStart, windowEnd time.Time, minDuration time.Duration) []Interval {
	out := make([]Interval, 0, len(merged)+1)
	cursor := windowStart

	emit := func(start, end time.Time) {
		if !end.After(start) {
			return
		}
		if end.Sub(start) < minDuration {
			return
		}
		out = append(out, Interval{Start: start, End: end})
	}

	for _, m := range merged {
		if !m.Start.After(cursor) {
			if m.End.After(cursor) {
				cursor = m.End
			}
			continue
		}
		gapEnd := m.Start
		if gapEnd.After(windowEnd) {
			gapEnd = windowEnd
		}
		emit(cursor, gapEnd)
		if m.End.After(cursor) {
			cursor = m.End
		}
		if !cursor.Before(windowEnd) {
			return out
		}
	}

	emit(cursor, windowEnd)
	return out
}
