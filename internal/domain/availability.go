package domain

import "time"

// NextAvailableParams tunes the forward scan for free slots.
type NextAvailableParams struct {
	DesiredStart   time.Time
	SlotDuration   time.Duration
	Horizon        time.Duration
	Step           time.Duration
	MaxSuggestions int
}

// NextAvailable scans forward from DesiredStart for up to MaxSuggestions
// slots of SlotDuration that do not overlap any busy instance. When a
// candidate hits an obstruction the cursor jumps past it, so the first
// suggestion is the earliest non-conflicting slot at or after DesiredStart;
// after that the cursor advances by Step. Returns the suggestions and the
// instant the scan stopped at.
func NextAvailable(busy []Interval, p NextAvailableParams) ([]Interval, time.Time) {
	merged := MergeIntervals(busy)
	searchEnd := p.DesiredStart.Add(p.Horizon)

	suggestions := make([]Interval, 0, p.MaxSuggestions)
	cursor := p.DesiredStart

scan:
	for cursor.Before(searchEnd) && len(suggestions) < p.MaxSuggestions {
		candidate := Interval{Start: cursor, End: cursor.Add(p.SlotDuration)}
		for _, m := range merged {
			if candidate.Overlaps(m) {
				cursor = m.End
				continue scan
			}
		}
		suggestions = append(suggestions, candidate)
		cursor = cursor.Add(p.Step)
	}

	return suggestions, cursor
}
