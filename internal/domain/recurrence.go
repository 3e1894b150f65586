package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRecurrence marks an RRULE that does not parse.
var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

const exceptDateLayout = "2006-01-02"

// IsInfiniteRule reports whether the RRULE text carries neither COUNT nor
// UNTIL, so the recurrence never terminates on its own.
func IsInfiniteRule(text string) bool {
	u := strings.ToUpper(text)
	return !strings.Contains(u, "COUNT=") && !strings.Contains(u, "UNTIL=")
}

// ValidateRecurrenceRule parses the RRULE text, binding DTSTART to baseStart
// when the text does not carry its own.
func ValidateRecurrenceRule(text string, baseStart time.Time) error {
	_, err := parseRuleSet(text, baseStart)
	return err
}

func parseRuleSet(text string, baseStart time.Time) (*rrule.Set, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRecurrence)
	}

	input := trimmed
	if !strings.Contains(strings.ToUpper(trimmed), "DTSTART") {
		line := trimmed
		if !strings.HasPrefix(strings.ToUpper(line), "RRULE:") {
			line = "RRULE:" + line
		}
		input = "DTSTART:" + baseStart.UTC().Format("20060102T150405Z") + "\n" + line
	}

	set, err := rrule.StrToRRuleSet(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return set, nil
}

// ExpandRecurrence enumerates the occurrences of an RRULE over
// [windowStart, windowEnd] (inclusive of both ends), applying per-date
// exceptions, and returns them as intervals in rule order.
//
// The booking's own [baseStart, baseEnd) is the first occurrence and fixes
// the duration D of every occurrence. Exceptions are keyed by the UTC
// calendar date of the occurrence start; a duplicate date keeps the last
// exception in list order. A skip exception drops the occurrence, a
// replacement emits [ReplaceStart, ReplaceEnd) instead of [o, o+D).
//
// Callers must pass a bounded window; infinite rules are expanded lazily
// against it.
func ExpandRecurrence(ruleText string, baseStart, baseEnd, windowStart, windowEnd time.Time, exceptions []Exception) ([]Interval, error) {
	if !baseEnd.After(baseStart) {
		return nil, errors.New("booking end must be after start")
	}

	set, err := parseRuleSet(ruleText, baseStart)
	if err != nil {
		return nil, err
	}

	d := baseEnd.Sub(baseStart)
	starts := set.Between(windowStart.UTC(), windowEnd.UTC(), true)

	byDate := make(map[string]Exception, len(exceptions))
	for _, ex := range exceptions {
		byDate[ex.ExceptDate.UTC().Format(exceptDateLayout)] = ex
	}

	out := make([]Interval, 0, len(starts))
	for _, o := range starts {
		o = o.UTC()
		ex, ok := byDate[o.Format(exceptDateLayout)]
		if !ok {
			out = append(out, Interval{Start: o, End: o.Add(d)})
			continue
		}
		if ex.ReplaceStart == nil || ex.ReplaceEnd == nil {
			continue
		}
		out = append(out, Interval{Start: ex.ReplaceStart.UTC(), End: ex.ReplaceEnd.UTC()})
	}
	return out, nil
}
