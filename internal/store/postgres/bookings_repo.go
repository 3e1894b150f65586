package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"reserva/backend/internal/domain"
	"reserva/backend/internal/store"
)

const noOverlapConstraint = "bookings_no_overlap"

type BookingRepo struct {
	db  *bun.DB
	log *slog.Logger

	// validationWindow bounds the expansion used to conflict-check a new
	// recurring booking (RECURRENCE_EXPANSION_DAYS).
	validationWindow time.Duration
}

func NewBookingRepo(db *bun.DB, log *slog.Logger, validationWindow time.Duration) *BookingRepo {
	if log == nil {
		log = slog.Default()
	}
	return &BookingRepo{
		db:               db,
		log:              log.With(slog.String("component", "postgres.bookings")),
		validationWindow: validationWindow,
	}
}

func (r *BookingRepo) GetResource(ctx context.Context, id uuid.UUID) (domain.Resource, error) {
	var res domain.Resource
	err := r.db.NewSelect().
		Model(&res).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Resource{}, store.ErrNotFound
		}
		return domain.Resource{}, err
	}
	return res, nil
}

func (r *BookingRepo) CreateBooking(ctx context.Context, b domain.Booking) (domain.Booking, error) {
	var out domain.Booking
	err := r.inResourceTx(ctx, b.ResourceID, func(ctx context.Context, tx bun.Tx) error {
		// The exclusion constraint only sees stored rows; occurrences of
		// recurring bookings exist nowhere as rows, so the busy set has to be
		// checked here too.
		busy, err := resolveBusy(ctx, tx, r.log, b.ResourceID, b.StartTime, b.EndTime)
		if err != nil {
			return err
		}
		req := domain.Interval{Start: b.StartTime, End: b.EndTime}
		for _, bi := range busy {
			if req.Overlaps(bi.Interval()) {
				return store.ErrConflict
			}
		}

		m := domain.Booking{
			ID:         b.ID,
			ResourceID: b.ResourceID,
			StartTime:  b.StartTime,
			EndTime:    b.EndTime,
			Metadata:   b.Metadata,
			CreatedAt:  b.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			if isNoOverlapViolation(err) {
				return store.ErrConflict
			}
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return domain.Booking{}, err
	}
	return out, nil
}

func (r *BookingRepo) CreateRecurringBooking(ctx context.Context, b domain.Booking, rule domain.RecurrenceRule, exceptions []domain.Exception) (domain.Booking, []domain.OccurrenceConflict, error) {
	windowStart := b.StartTime.UTC()
	windowEnd := windowStart.Add(r.validationWindow)

	occs, err := domain.ExpandRecurrence(rule.Rule, b.StartTime, b.EndTime, windowStart, windowEnd, exceptions)
	if err != nil {
		return domain.Booking{}, nil, err
	}

	// Occurrences of the new rule must not collide with each other either;
	// the busy set below only covers already-persisted rows.
	if self := selfOverlap(occs); self != nil {
		return domain.Booking{}, []domain.OccurrenceConflict{*self}, store.ErrConflict
	}

	var out domain.Booking
	var conflicts []domain.OccurrenceConflict
	err = r.inResourceTx(ctx, b.ResourceID, func(ctx context.Context, tx bun.Tx) error {
		busy, err := resolveBusy(ctx, tx, r.log, b.ResourceID, windowStart, windowEnd)
		if err != nil {
			return err
		}

		for _, occ := range occs {
			for _, bi := range busy {
				if occ.Overlaps(bi.Interval()) {
					conflicts = append(conflicts, domain.OccurrenceConflict{
						Busy:            bi,
						OccurrenceStart: occ.Start,
						OccurrenceEnd:   occ.End,
					})
				}
			}
		}
		if len(conflicts) > 0 {
			return store.ErrConflict
		}

		m := domain.Booking{
			ID:         b.ID,
			ResourceID: b.ResourceID,
			StartTime:  b.StartTime,
			EndTime:    b.EndTime,
			Metadata:   b.Metadata,
			CreatedAt:  b.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			if isNoOverlapViolation(err) {
				return store.ErrConflict
			}
			return err
		}

		rm := rule
		rm.BookingID = m.ID
		if _, err := tx.NewInsert().Model(&rm).Exec(ctx); err != nil {
			return err
		}
		m.Rule = &rm

		if len(exceptions) > 0 {
			exs := make([]domain.Exception, len(exceptions))
			for i, ex := range exceptions {
				ex.BookingID = m.ID
				exs[i] = ex
			}
			if _, err := tx.NewInsert().Model(&exs).Exec(ctx); err != nil {
				return err
			}
			m.Exceptions = exs
		}

		out = m
		return nil
	})
	if err != nil {
		return domain.Booking{}, conflicts, err
	}
	return out, nil, nil
}

func (r *BookingRepo) ListBusy(ctx context.Context, resourceID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.BusyInstance, error) {
	return resolveBusy(ctx, r.db, r.log, resourceID, windowStart, windowEnd)
}

// inResourceTx serializes all writers on a resource for the duration of the
// transaction. The exclusion constraint alone cannot see future occurrences
// of two concurrently created recurring bookings, so recurring creates must
// run their expand-check-insert sequence under this lock.
func (r *BookingRepo) inResourceTx(ctx context.Context, resourceID uuid.UUID, fn func(ctx context.Context, tx bun.Tx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", resourceID.String()).Exec(ctx); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

// resolveBusy materializes every interval on the resource overlapping
// [windowStart, windowEnd): single bookings via the range-overlap index, then
// recurring bookings expanded over [windowStart - D, windowEnd) so that an
// occurrence starting before the window but ending inside it is still
// produced. Persisted rules that no longer parse are logged and skipped.
func resolveBusy(ctx context.Context, db bun.IDB, log *slog.Logger, resourceID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.BusyInstance, error) {
	ws := windowStart.UTC()
	we := windowEnd.UTC()

	var singles []domain.Booking
	err := db.NewSelect().
		Model(&singles).
		Where("booking.resource_id = ?", resourceID).
		Where("booking.time_range && tstzrange(?, ?, '[)')", ws, we).
		Where("NOT EXISTS (SELECT 1 FROM recurrence_rules rr WHERE rr.booking_id = booking.id)").
		OrderExpr("booking.start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var recurring []domain.Booking
	err = db.NewSelect().
		Model(&recurring).
		Relation("Rule").
		Relation("Exceptions").
		Where("booking.resource_id = ?", resourceID).
		Where("booking.start_time < ?", we).
		Where("EXISTS (SELECT 1 FROM recurrence_rules rr WHERE rr.booking_id = booking.id)").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.BusyInstance, 0, len(singles))
	for _, b := range singles {
		out = append(out, domain.BusyInstance{
			BookingID: b.ID,
			StartTime: b.StartTime.UTC(),
			EndTime:   b.EndTime.UTC(),
		})
	}

	for _, b := range recurring {
		if b.Rule == nil {
			continue
		}
		occs, err := domain.ExpandRecurrence(b.Rule.Rule, b.StartTime, b.EndTime, ws.Add(-b.Duration()), we, b.Exceptions)
		if err != nil {
			log.Warn(
				"skipping booking with unparseable recurrence rule",
				slog.String("booking_id", b.ID.String()),
				slog.Any("err", err),
			)
			continue
		}
		for _, occ := range occs {
			if occ.Start.Before(we) && occ.End.After(ws) {
				out = append(out, domain.BusyInstance{
					BookingID:   b.ID,
					StartTime:   occ.Start,
					EndTime:     occ.End,
					IsRecurring: true,
				})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out, nil
}

func selfOverlap(occs []domain.Interval) *domain.OccurrenceConflict {
	sorted := make([]domain.Interval, len(occs))
	copy(sorted, occs)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].End.After(sorted[i].Start) {
			return &domain.OccurrenceConflict{
				OccurrenceStart: sorted[i].Start,
				OccurrenceEnd:   sorted[i].End,
			}
		}
	}
	return nil
}

func isNoOverlapViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint
}
