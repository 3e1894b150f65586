package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"reserva/backend/internal/domain"
	"reserva/backend/internal/store"
)

// Next-available search knobs. The forward scan looks at most searchHorizon
// past the desired start, advances by searchStep between accepted slots, and
// never returns more than maxSuggestions.
const (
	searchHorizon  = 720 * time.Hour
	searchStep     = 15 * time.Minute
	maxSuggestions = 5
)

type ValidationError struct {
	Field string
	msg   string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(field, msg string) error {
	return &ValidationError{Field: field, msg: msg}
}

type Service struct {
	repo store.BookingRepository
}

func NewService(repo store.BookingRepository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	ResourceID     uuid.UUID
	StartTime      time.Time
	EndTime        time.Time
	Metadata       json.RawMessage
	RecurrenceRule string
	Exceptions     []ExceptionInput
}

type ExceptionInput struct {
	Date         time.Time
	ReplaceStart *time.Time
	ReplaceEnd   *time.Time
}

// Conflict describes one busy instance the request collided with. The
// occurrence fields are set only for recurring requests and carry the
// candidate occurrence that clashed.
type Conflict struct {
	BookingID       uuid.UUID
	StartTime       time.Time
	EndTime         time.Time
	IsRecurring     bool
	OccurrenceStart *time.Time
	OccurrenceEnd   *time.Time
}

type ConflictResult struct {
	Conflicts     []Conflict
	NextAvailable []domain.Interval
}

// CreateResult carries either the created booking or a conflict. A conflict
// is an expected outcome, not an error: the error return covers validation
// and storage failures only.
type CreateResult struct {
	Booking  domain.Booking
	Conflict *ConflictResult
}

func (s *Service) Create(ctx context.Context, in CreateInput) (CreateResult, error) {
	if in.ResourceID == uuid.Nil {
		return CreateResult{}, validationError("resource_id", "resource_id is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !end.After(start) {
		return CreateResult{}, validationError("end_time", "end_time must be after start_time")
	}

	if in.RecurrenceRule == "" && len(in.Exceptions) > 0 {
		return CreateResult{}, validationError("exceptions", "exceptions require a recurrence_rule")
	}

	exceptions := make([]domain.Exception, 0, len(in.Exceptions))
	for _, ex := range in.Exceptions {
		if (ex.ReplaceStart == nil) != (ex.ReplaceEnd == nil) {
			return CreateResult{}, validationError("exceptions", "replace_start and replace_end must both be present or both absent")
		}
		e := domain.Exception{ExceptDate: utcDate(ex.Date)}
		if ex.ReplaceStart != nil {
			rs := ex.ReplaceStart.UTC()
			re := ex.ReplaceEnd.UTC()
			if !re.After(rs) {
				return CreateResult{}, validationError("exceptions", "replace_end must be after replace_start")
			}
			e.ReplaceStart = &rs
			e.ReplaceEnd = &re
		}
		exceptions = append(exceptions, e)
	}

	if in.RecurrenceRule != "" {
		if err := domain.ValidateRecurrenceRule(in.RecurrenceRule, start); err != nil {
			return CreateResult{}, err
		}
	}

	if _, err := s.repo.GetResource(ctx, in.ResourceID); err != nil {
		return CreateResult{}, err
	}

	b := domain.Booking{
		ResourceID: in.ResourceID,
		StartTime:  start,
		EndTime:    end,
		Metadata:   in.Metadata,
	}

	if in.RecurrenceRule == "" {
		return s.createSingle(ctx, b)
	}
	return s.createRecurring(ctx, b, in.RecurrenceRule, exceptions)
}

func (s *Service) createSingle(ctx context.Context, b domain.Booking) (CreateResult, error) {
	created, err := s.repo.CreateBooking(ctx, b)
	if err == nil {
		return CreateResult{Booking: created}, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return CreateResult{}, err
	}

	busy, err := s.repo.ListBusy(ctx, b.ResourceID, b.StartTime, b.EndTime)
	if err != nil {
		return CreateResult{}, err
	}
	conflicts := make([]Conflict, 0, len(busy))
	for _, bi := range busy {
		conflicts = append(conflicts, Conflict{
			BookingID:   bi.BookingID,
			StartTime:   bi.StartTime,
			EndTime:     bi.EndTime,
			IsRecurring: bi.IsRecurring,
		})
	}

	next, err := s.nextAvailable(ctx, b.ResourceID, b.StartTime, b.Duration())
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{Conflict: &ConflictResult{Conflicts: conflicts, NextAvailable: next}}, nil
}

func (s *Service) createRecurring(ctx context.Context, b domain.Booking, rule string, exceptions []domain.Exception) (CreateResult, error) {
	r := domain.RecurrenceRule{
		Rule:       rule,
		IsInfinite: domain.IsInfiniteRule(rule),
	}

	created, occConflicts, err := s.repo.CreateRecurringBooking(ctx, b, r, exceptions)
	if err == nil {
		return CreateResult{Booking: created}, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return CreateResult{}, err
	}

	conflicts := make([]Conflict, 0, len(occConflicts))
	for _, oc := range occConflicts {
		os := oc.OccurrenceStart
		oe := oc.OccurrenceEnd
		conflicts = append(conflicts, Conflict{
			BookingID:       oc.Busy.BookingID,
			StartTime:       oc.Busy.StartTime,
			EndTime:         oc.Busy.EndTime,
			IsRecurring:     oc.Busy.IsRecurring,
			OccurrenceStart: &os,
			OccurrenceEnd:   &oe,
		})
	}

	next, err := s.nextAvailable(ctx, b.ResourceID, b.StartTime, b.Duration())
	if err != nil {
		return CreateResult{}, err
	}

	return CreateResult{Conflict: &ConflictResult{Conflicts: conflicts, NextAvailable: next}}, nil
}

func (s *Service) nextAvailable(ctx context.Context, resourceID uuid.UUID, desiredStart time.Time, slot time.Duration) ([]domain.Interval, error) {
	busy, err := s.repo.ListBusy(ctx, resourceID, desiredStart, desiredStart.Add(searchHorizon))
	if err != nil {
		return nil, err
	}
	intervals := make([]domain.Interval, 0, len(busy))
	for _, bi := range busy {
		intervals = append(intervals, bi.Interval())
	}
	suggestions, _ := domain.NextAvailable(intervals, domain.NextAvailableParams{
		DesiredStart:   desiredStart,
		SlotDuration:   slot,
		Horizon:        searchHorizon,
		Step:           searchStep,
		MaxSuggestions: maxSuggestions,
	})
	return suggestions, nil
}

type AvailableSlot struct {
	Start           time.Time
	End             time.Time
	DurationMinutes int
}

type AvailabilityResult struct {
	Resource            domain.Resource
	From                time.Time
	To                  time.Time
	SlotDurationMinutes int
	AvailableSlots      []AvailableSlot
	BusySlotsCount      int
}

func (s *Service) Availability(ctx context.Context, resourceID uuid.UUID, from, to time.Time, slotMinutes int) (AvailabilityResult, error) {
	if resourceID == uuid.Nil {
		return AvailabilityResult{}, validationError("resource_id", "resource_id is required")
	}
	from = from.UTC()
	to = to.UTC()
	if !to.After(from) {
		return AvailabilityResult{}, validationError("to", "to must be after from")
	}
	if slotMinutes < 0 {
		return AvailabilityResult{}, validationError("slot", "slot must not be negative")
	}

	res, err := s.repo.GetResource(ctx, resourceID)
	if err != nil {
		return AvailabilityResult{}, err
	}

	busy, err := s.repo.ListBusy(ctx, resourceID, from, to)
	if err != nil {
		return AvailabilityResult{}, err
	}

	intervals := make([]domain.Interval, 0, len(busy))
	for _, bi := range busy {
		intervals = append(intervals, bi.Interval())
	}
	merged := domain.MergeIntervals(intervals)
	gaps := domain.Gaps(merged, from, to, time.Duration(slotMinutes)*time.Minute)

	slots := make([]AvailableSlot, 0, len(gaps))
	for _, g := range gaps {
		slots = append(slots, AvailableSlot{
			Start:           g.Start,
			End:             g.End,
			DurationMinutes: int(g.Duration() / time.Minute),
		})
	}

	return AvailabilityResult{
		Resource:            res,
		From:                from,
		To:                  to,
		SlotDurationMinutes: slotMinutes,
		AvailableSlots:      slots,
		BusySlotsCount:      len(busy),
	}, nil
}

func utcDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
