package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"reserva/backend/internal/domain"
	"reserva/backend/internal/service/bookings"
	"reserva/backend/internal/store"
)

const defaultSlotMinutes = 60

type bookingService interface {
	Create(ctx context.Context, in bookings.CreateInput) (bookings.CreateResult, error)
	Availability(ctx context.Context, resourceID uuid.UUID, from, to time.Time, slotMinutes int) (bookings.AvailabilityResult, error)
}

type Handler struct {
	svc bookingService
	log *slog.Logger
}

func NewHandler(svc bookingService, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		svc: svc,
		log: log.With(slog.String("component", "httpapi")),
	}
}

func (h *Handler) Router(requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/healthz", h.healthz)
	r.Post("/bookings", h.createBooking)
	r.Get("/availability", h.getAvailability)

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "createBooking"))

	var req createBookingRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.badRequest(w, r, "", "request body must be valid JSON")
		return
	}
	if err := req.Validate(); err != nil {
		h.badRequest(w, r, "", err.Error())
		return
	}
	for _, ex := range req.Exceptions {
		if err := ex.Validate(); err != nil {
			h.badRequest(w, r, "exceptions", err.Error())
			return
		}
	}

	in, err := h.buildCreateInput(req)
	if err != nil {
		h.badRequest(w, r, "", err.Error())
		return
	}

	result, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.renderError(w, r, log, err)
		return
	}

	if result.Conflict != nil {
		log.Info(
			"booking conflict",
			slog.String("resource_id", in.ResourceID.String()),
			slog.Time("start_time", in.StartTime),
			slog.Time("end_time", in.EndTime),
			slog.Int("conflicts", len(result.Conflict.Conflicts)),
		)
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, toConflictResponse(result.Conflict))
		return
	}

	log.Info(
		"booking created",
		slog.String("booking_id", result.Booking.ID.String()),
		slog.String("resource_id", result.Booking.ResourceID.String()),
		slog.Bool("is_recurring", result.Booking.IsRecurring()),
	)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, createBookingResponse{Status: "success", Booking: toBookingPayload(result.Booking)})
}

func (h *Handler) buildCreateInput(req createBookingRequest) (bookings.CreateInput, error) {
	resourceID, err := uuid.Parse(req.ResourceID)
	if err != nil {
		return bookings.CreateInput{}, errors.New("resource_id must be a UUID")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return bookings.CreateInput{}, errors.New("start_time must be an RFC 3339 instant")
	}
	end, err := time.Parse(time.RFC3339, req.EndTime)
	if err != nil {
		return bookings.CreateInput{}, errors.New("end_time must be an RFC 3339 instant")
	}

	in := bookings.CreateInput{
		ResourceID:     resourceID,
		StartTime:      start,
		EndTime:        end,
		Metadata:       req.Metadata,
		RecurrenceRule: req.RecurrenceRule,
	}

	for _, ex := range req.Exceptions {
		date, err := time.ParseInLocation(dateLayout, ex.Date, time.UTC)
		if err != nil {
			return bookings.CreateInput{}, errors.New("exception date must be YYYY-MM-DD")
		}
		exIn := bookings.ExceptionInput{Date: date}
		if ex.ReplaceStart != nil {
			rs, err := time.Parse(time.RFC3339, *ex.ReplaceStart)
			if err != nil {
				return bookings.CreateInput{}, errors.New("replace_start must be an RFC 3339 instant")
			}
			exIn.ReplaceStart = &rs
		}
		if ex.ReplaceEnd != nil {
			re, err := time.Parse(time.RFC3339, *ex.ReplaceEnd)
			if err != nil {
				return bookings.CreateInput{}, errors.New("replace_end must be an RFC 3339 instant")
			}
			exIn.ReplaceEnd = &re
		}
		in.Exceptions = append(in.Exceptions, exIn)
	}

	return in, nil
}

func (h *Handler) getAvailability(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(slog.String("handler", "getAvailability"))
	q := r.URL.Query()

	if err := validation.Validate(q.Get("resource_id"), validation.Required); err != nil {
		h.badRequest(w, r, "resource_id", "resource_id: "+err.Error())
		return
	}
	if err := validation.Validate(q.Get("from"), validation.Required, validation.Date(time.RFC3339)); err != nil {
		h.badRequest(w, r, "from", "from: "+err.Error())
		return
	}
	if err := validation.Validate(q.Get("to"), validation.Required, validation.Date(time.RFC3339)); err != nil {
		h.badRequest(w, r, "to", "to: "+err.Error())
		return
	}

	resourceID, err := uuid.Parse(q.Get("resource_id"))
	if err != nil {
		h.badRequest(w, r, "resource_id", "resource_id must be a UUID")
		return
	}
	from, _ := time.Parse(time.RFC3339, q.Get("from"))
	to, _ := time.Parse(time.RFC3339, q.Get("to"))

	slotMinutes := defaultSlotMinutes
	if raw := q.Get("slot"); raw != "" {
		slotMinutes, err = strconv.Atoi(raw)
		if err != nil {
			h.badRequest(w, r, "slot", "slot must be an integer number of minutes")
			return
		}
	}

	result, err := h.svc.Availability(r.Context(), resourceID, from, to, slotMinutes)
	if err != nil {
		h.renderError(w, r, log, err)
		return
	}

	log.Debug(
		"availability computed",
		slog.String("resource_id", resourceID.String()),
		slog.Int("available_slots", len(result.AvailableSlots)),
		slog.Int("busy_slots", result.BusySlotsCount),
	)
	render.JSON(w, r, toAvailabilityResponse(result))
}

func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, field, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, errResponse{Status: "error", Message: msg, Field: field})
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var vErr *bookings.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.Warn("invalid request", slog.Any("err", err))
		h.badRequest(w, r, vErr.Field, vErr.Error())
	case errors.Is(err, domain.ErrInvalidRecurrence):
		log.Warn("invalid recurrence rule", slog.Any("err", err))
		h.badRequest(w, r, "recurrence_rule", err.Error())
	case errors.Is(err, store.ErrNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, errResponse{Status: "error", Message: "resource not found"})
	default:
		log.Error("request failed", slog.Any("err", err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, errResponse{Status: "error", Message: "internal error"})
	}
}
