package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Resource struct {
	bun.BaseModel `bun:"table:resources"`

	ID   uuid.UUID `bun:"id,pk,type:uuid"`
	Name string    `bun:"name,notnull"`
}

// Booking reserves a resource over the half-open interval
// [StartTime, EndTime). For a recurring booking the interval is the first
// occurrence and fixes the duration of every occurrence; Rule is non-nil and
// Exceptions may rewrite or skip individual occurrences.
type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID         uuid.UUID       `bun:"id,pk,type:uuid"`
	ResourceID uuid.UUID       `bun:"resource_id,notnull,type:uuid"`
	StartTime  time.Time       `bun:"start_time,notnull"`
	EndTime    time.Time       `bun:"end_time,notnull"`
	Metadata   json.RawMessage `bun:"metadata,type:jsonb"`
	CreatedAt  time.Time       `bun:"created_at,notnull"`

	Rule       *RecurrenceRule `bun:"rel:has-one,join:id=booking_id"`
	Exceptions []Exception     `bun:"rel:has-many,join:id=booking_id"`
}

func (b *Booking) IsRecurring() bool {
	return b.Rule != nil
}

func (b *Booking) Duration() time.Duration {
	return b.EndTime.Sub(b.StartTime)
}

func (b *Booking) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}

type RecurrenceRule struct {
	bun.BaseModel `bun:"table:recurrence_rules"`

	BookingID uuid.UUID `bun:"booking_id,pk,type:uuid"`
	Rule      string    `bun:"rrule,notnull"`
	// IsInfinite records that the rule carries neither COUNT nor UNTIL.
	// Reads always expand against a bounded window, so this is bookkeeping
	// only.
	IsInfinite bool `bun:"is_infinite,notnull"`
}

// Exception overrides the occurrence of a recurring booking whose start
// falls on ExceptDate (a UTC calendar date). Without replacement fields the
// occurrence is skipped; with them it is replaced by
// [ReplaceStart, ReplaceEnd), which may fall on a different date.
type Exception struct {
	bun.BaseModel `bun:"table:exceptions"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	BookingID    uuid.UUID  `bun:"booking_id,notnull,type:uuid"`
	ExceptDate   time.Time  `bun:"except_date,notnull,type:date"`
	ReplaceStart *time.Time `bun:"replace_start"`
	ReplaceEnd   *time.Time `bun:"replace_end"`
}

func (e *Exception) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if e.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		e.ID = id
	}
	return nil
}

// BusyInstance is one materialized occupied interval on a resource: a single
// booking or one expanded occurrence of a recurring booking.
type BusyInstance struct {
	BookingID   uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	IsRecurring bool
}

func (b BusyInstance) Interval() Interval {
	return Interval{Start: b.StartTime, End: b.EndTime}
}

// OccurrenceConflict pairs a busy instance with the candidate occurrence it
// collided with, so clients can tell which instance of a requested
// recurrence clashed.
type OccurrenceConflict struct {
	Busy            BusyInstance
	OccurrenceStart time.Time
	OccurrenceEnd   time.Time
}
