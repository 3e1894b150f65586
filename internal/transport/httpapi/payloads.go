package httpapi

import (
	"encoding/json"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"

	"reserva/backend/internal/domain"
	"reserva/backend/internal/service/bookings"
)

// All instants on the wire are RFC 3339 UTC with millisecond precision.
const (
	timeLayout = "2006-01-02T15:04:05.000Z07:00"
	dateLayout = "2006-01-02"
)

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type createBookingRequest struct {
	ResourceID     string             `json:"resource_id"`
	StartTime      string             `json:"start_time"`
	EndTime        string             `json:"end_time"`
	Metadata       json.RawMessage    `json:"metadata,omitempty"`
	RecurrenceRule string             `json:"recurrence_rule,omitempty"`
	Exceptions     []exceptionPayload `json:"exceptions,omitempty"`
}

func (r createBookingRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ResourceID, validation.Required),
		validation.Field(&r.StartTime, validation.Required, validation.Date(time.RFC3339)),
		validation.Field(&r.EndTime, validation.Required, validation.Date(time.RFC3339)),
	)
}

type exceptionPayload struct {
	Date         string  `json:"date"`
	ReplaceStart *string `json:"replace_start,omitempty"`
	ReplaceEnd   *string `json:"replace_end,omitempty"`
}

func (e exceptionPayload) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Date, validation.Required, validation.Date(dateLayout)),
	)
}

type bookingPayload struct {
	ID             string             `json:"id"`
	ResourceID     string             `json:"resource_id"`
	StartTime      string             `json:"start_time"`
	EndTime        string             `json:"end_time"`
	Metadata       json.RawMessage    `json:"metadata"`
	CreatedAt      string             `json:"created_at"`
	IsRecurring    bool               `json:"is_recurring"`
	RecurrenceRule string             `json:"recurrence_rule,omitempty"`
	Exceptions     []exceptionPayload `json:"exceptions"`
}

type createBookingResponse struct {
	Status  string         `json:"status"`
	Booking bookingPayload `json:"booking"`
}

type conflictPayload struct {
	BookingID       string  `json:"booking_id"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	IsRecurring     bool    `json:"is_recurring"`
	OccurrenceStart *string `json:"occurrence_start,omitempty"`
	OccurrenceEnd   *string `json:"occurrence_end,omitempty"`
}

type slotPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type conflictResponse struct {
	Status        string            `json:"status"`
	Message       string            `json:"message"`
	Conflicts     []conflictPayload `json:"conflicts"`
	NextAvailable []slotPayload     `json:"next_available"`
}

type availableSlotPayload struct {
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int    `json:"duration_minutes"`
}

type availabilityResponse struct {
	ResourceID          string                 `json:"resource_id"`
	ResourceName        string                 `json:"resource_name"`
	From                string                 `json:"from"`
	To                  string                 `json:"to"`
	SlotDurationMinutes int                    `json:"slot_duration_minutes"`
	AvailableSlots      []availableSlotPayload `json:"available_slots"`
	BusySlotsCount      int                    `json:"busy_slots_count"`
}

type errResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func toBookingPayload(b domain.Booking) bookingPayload {
	p := bookingPayload{
		ID:          b.ID.String(),
		ResourceID:  b.ResourceID.String(),
		StartTime:   fmtTime(b.StartTime),
		EndTime:     fmtTime(b.EndTime),
		Metadata:    b.Metadata,
		CreatedAt:   fmtTime(b.CreatedAt),
		IsRecurring: b.IsRecurring(),
		Exceptions:  make([]exceptionPayload, 0, len(b.Exceptions)),
	}
	if b.Rule != nil {
		p.RecurrenceRule = b.Rule.Rule
	}
	for _, ex := range b.Exceptions {
		ep := exceptionPayload{Date: ex.ExceptDate.UTC().Format(dateLayout)}
		if ex.ReplaceStart != nil && ex.ReplaceEnd != nil {
			rs := fmtTime(*ex.ReplaceStart)
			re := fmtTime(*ex.ReplaceEnd)
			ep.ReplaceStart = &rs
			ep.ReplaceEnd = &re
		}
		p.Exceptions = append(p.Exceptions, ep)
	}
	return p
}

func toConflictResponse(c *bookings.ConflictResult) conflictResponse {
	resp := conflictResponse{
		Status:        "conflict",
		Message:       "Requested time conflicts with existing bookings",
		Conflicts:     make([]conflictPayload, 0, len(c.Conflicts)),
		NextAvailable: make([]slotPayload, 0, len(c.NextAvailable)),
	}
	for _, cf := range c.Conflicts {
		p := conflictPayload{
			BookingID:   cf.BookingID.String(),
			Start:       fmtTime(cf.StartTime),
			End:         fmtTime(cf.EndTime),
			IsRecurring: cf.IsRecurring,
		}
		if cf.OccurrenceStart != nil && cf.OccurrenceEnd != nil {
			os := fmtTime(*cf.OccurrenceStart)
			oe := fmtTime(*cf.OccurrenceEnd)
			p.OccurrenceStart = &os
			p.OccurrenceEnd = &oe
		}
		resp.Conflicts = append(resp.Conflicts, p)
	}
	for _, s := range c.NextAvailable {
		resp.NextAvailable = append(resp.NextAvailable, slotPayload{Start: fmtTime(s.Start), End: fmtTime(s.End)})
	}
	return resp
}

func toAvailabilityResponse(a bookings.AvailabilityResult) availabilityResponse {
	resp := availabilityResponse{
		ResourceID:          a.Resource.ID.String(),
		ResourceName:        a.Resource.Name,
		From:                fmtTime(a.From),
		To:                  fmtTime(a.To),
		SlotDurationMinutes: a.SlotDurationMinutes,
		AvailableSlots:      make([]availableSlotPayload, 0, len(a.AvailableSlots)),
		BusySlotsCount:      a.BusySlotsCount,
	}
	for _, s := range a.AvailableSlots {
		resp.AvailableSlots = append(resp.AvailableSlots, availableSlotPayload{
			Start:           fmtTime(s.Start),
			End:             fmtTime(s.End),
			DurationMinutes: s.DurationMinutes,
		})
	}
	return resp
}
