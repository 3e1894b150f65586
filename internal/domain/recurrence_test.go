package domain

import (
	"errors"
	"testing"
	"time"
)

func TestIsInfiniteRule(t *testing.T) {
	tests := []struct {
		rule string
		want bool
	}{
		{"FREQ=WEEKLY;BYDAY=MO;COUNT=4", false},
		{"FREQ=DAILY;UNTIL=20260101T000000Z", false},
		{"FREQ=WEEKLY;BYDAY=MO", true},
		{"freq=weekly;count=2", false},
	}

	for _, tt := range tests {
		if got := IsInfiniteRule(tt.rule); got != tt.want {
			t.Fatalf("IsInfiniteRule(%q) = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

func TestValidateRecurrenceRule(t *testing.T) {
	base := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)

	if err := ValidateRecurrenceRule("FREQ=WEEKLY;BYDAY=MO;COUNT=4", base); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
	if err := ValidateRecurrenceRule("RRULE:FREQ=DAILY;COUNT=2", base); err != nil {
		t.Fatalf("prefixed rule rejected: %v", err)
	}

	for _, rule := range []string{"INVALID", "", "   ", "FREQ=SOMETIMES"} {
		err := ValidateRecurrenceRule(rule, base)
		if !errors.Is(err, ErrInvalidRecurrence) {
			t.Fatalf("ValidateRecurrenceRule(%q) = %v, want ErrInvalidRecurrence", rule, err)
		}
	}
}

func TestExpandRecurrence_WeeklyCount(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)
	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, windowStart, windowEnd, nil)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("len(occs) = %d, want 4", len(occs))
	}
	for i, day := range []int{3, 10, 17, 24} {
		want := time.Date(2025, 11, day, 10, 0, 0, 0, time.UTC)
		if !occs[i].Start.Equal(want) {
			t.Fatalf("occs[%d].Start = %v, want %v", i, occs[i].Start, want)
		}
		if !occs[i].End.Equal(want.Add(time.Hour)) {
			t.Fatalf("occs[%d].End = %v, want %v", i, occs[i].End, want.Add(time.Hour))
		}
	}
}

func TestExpandRecurrence_SkipException(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)
	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	exceptions := []Exception{
		{ExceptDate: time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)},
	}

	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, windowStart, windowEnd, exceptions)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 3 {
		t.Fatalf("len(occs) = %d, want 3 (Nov 10 skipped)", len(occs))
	}
	for i, day := range []int{3, 17, 24} {
		want := time.Date(2025, 11, day, 10, 0, 0, 0, time.UTC)
		if !occs[i].Start.Equal(want) {
			t.Fatalf("occs[%d].Start = %v, want %v", i, occs[i].Start, want)
		}
	}
}

func TestExpandRecurrence_ReplacementException(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)
	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	replaceStart := time.Date(2025, 11, 10, 14, 0, 0, 0, time.UTC)
	replaceEnd := time.Date(2025, 11, 10, 15, 0, 0, 0, time.UTC)
	exceptions := []Exception{
		{
			ExceptDate:   time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC),
			ReplaceStart: &replaceStart,
			ReplaceEnd:   &replaceEnd,
		},
	}

	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, windowStart, windowEnd, exceptions)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("len(occs) = %d, want 4", len(occs))
	}
	if !occs[1].Start.Equal(replaceStart) || !occs[1].End.Equal(replaceEnd) {
		t.Fatalf("replaced occurrence = %v, want [14:00, 15:00)", occs[1])
	}
}

func TestExpandRecurrence_DuplicateExceptionLastWins(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)
	windowStart := baseStart
	windowEnd := baseStart.Add(21 * 24 * time.Hour)

	replaceStart := time.Date(2025, 11, 10, 14, 0, 0, 0, time.UTC)
	replaceEnd := replaceStart.Add(time.Hour)
	exceptDate := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)

	exceptions := []Exception{
		{ExceptDate: exceptDate, ReplaceStart: &replaceStart, ReplaceEnd: &replaceEnd},
		{ExceptDate: exceptDate},
	}

	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, windowStart, windowEnd, exceptions)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	for _, o := range occs {
		if o.Start.Day() == 10 {
			t.Fatalf("expected Nov 10 to be skipped by the last exception, got %v", o)
		}
	}

	// Applying the same list again yields the same result.
	again, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, windowStart, windowEnd, exceptions)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(again) != len(occs) {
		t.Fatalf("re-expansion produced %d occurrences, want %d", len(again), len(occs))
	}
}

func TestExpandRecurrence_WindowIsInclusive(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)

	// Window ends exactly on an occurrence start.
	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO;COUNT=4", baseStart, baseEnd, baseStart, time.Date(2025, 11, 10, 10, 0, 0, 0, time.UTC), nil)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("len(occs) = %d, want 2 (both window edges inclusive)", len(occs))
	}
}

func TestExpandRecurrence_TextCarriesDTStart(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)

	// DTSTART in the rule text wins over the template start.
	rule := "DTSTART:20251104T090000Z\nRRULE:FREQ=DAILY;COUNT=2"
	occs, err := ExpandRecurrence(rule, baseStart, baseEnd, baseStart, baseStart.Add(7*24*time.Hour), nil)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 2 {
		t.Fatalf("len(occs) = %d, want 2", len(occs))
	}
	want := time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)
	if !occs[0].Start.Equal(want) {
		t.Fatalf("occs[0].Start = %v, want %v", occs[0].Start, want)
	}
	// Duration still comes from the template.
	if occs[0].Duration() != time.Hour {
		t.Fatalf("duration = %v, want 1h", occs[0].Duration())
	}
}

func TestExpandRecurrence_InfiniteRuleBoundedByWindow(t *testing.T) {
	baseStart := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	baseEnd := baseStart.Add(time.Hour)
	windowEnd := baseStart.Add(28 * 24 * time.Hour)

	occs, err := ExpandRecurrence("FREQ=WEEKLY;BYDAY=MO", baseStart, baseEnd, baseStart, windowEnd, nil)
	if err != nil {
		t.Fatalf("ExpandRecurrence error: %v", err)
	}
	if len(occs) != 5 {
		t.Fatalf("len(occs) = %d, want 5", len(occs))
	}
}

func TestExpandRecurrence_InvalidTemplate(t *testing.T) {
	start := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	if _, err := ExpandRecurrence("FREQ=DAILY;COUNT=1", start, start, start, start.Add(time.Hour), nil); err == nil {
		t.Fatalf("expected error for zero-length template")
	}
}
