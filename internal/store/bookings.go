package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"reserva/backend/internal/domain"
)

type BookingRepository interface {
	GetResource(ctx context.Context, id uuid.UUID) (domain.Resource, error)

	// CreateBooking inserts a single booking. The storage layer's
	// resource-scoped non-overlap exclusion is the source of truth; a
	// violation surfaces as ErrConflict.
	CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error)

	// CreateRecurringBooking expands the rule over the repository's
	// validation window, checks every occurrence against the resource's busy
	// set while holding the resource lock, and inserts booking, rule and
	// exceptions atomically. On ErrConflict the returned slice carries every
	// colliding occurrence.
	CreateRecurringBooking(ctx context.Context, b domain.Booking, rule domain.RecurrenceRule, exceptions []domain.Exception) (domain.Booking, []domain.OccurrenceConflict, error)

	// ListBusy returns the merged view of all intervals on the resource that
	// overlap [windowStart, windowEnd): single bookings plus expanded
	// recurring occurrences with exceptions applied, sorted by start.
	ListBusy(ctx context.Context, resourceID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.BusyInstance, error)
}
