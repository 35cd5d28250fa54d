package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
)

var (
	ErrSlotNotFound    = apperr.New(apperr.KindSlotUnavailable, "slot_not_found", "no such slot for this doctor and date")
	ErrInvalidRange    = apperr.BadRequest("invalid_range", "invalid availability range")
	ErrUnsupportedType = apperr.BadRequest("unsupported_consultation_type", "doctor does not offer this consultation type")
)

type AvailabilityRequest struct {
	DoctorID         uuid.UUID
	From             time.Time // calendar date; zero means today
	Days             int
	ConsultationType ConsultationType // optional filter
}

// AvailabilityQuery combines generated slots with reserved bookings. Nothing is
// cached: each call re-reads the store and re-evaluates the past-slot boundary.
type AvailabilityQuery struct {
	repo     Repository
	bookings BookingCounter
	loc      *time.Location
	now      func() time.Time
	maxDays  int
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

type AvailabilityOption func(*AvailabilityQuery)

func WithClock(now func() time.Time) AvailabilityOption {
	return func(q *AvailabilityQuery) { q.now = now }
}

func WithMaxDays(n int) AvailabilityOption {
	return func(q *AvailabilityQuery) {
		if n > 0 {
			q.maxDays = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) AvailabilityOption {
	return func(q *AvailabilityQuery) { q.metrics = m }
}

func NewAvailabilityQuery(repo Repository, bookings BookingCounter, loc *time.Location, log *logrus.Entry, opts ...AvailabilityOption) *AvailabilityQuery {
	if loc == nil {
		loc = time.UTC
	}
	q := &AvailabilityQuery{
		repo:     repo,
		bookings: bookings,
		loc:      loc,
		now:      time.Now,
		maxDays:  60,
		log:      log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *AvailabilityQuery) Location() *time.Location { return q.loc }

func (q *AvailabilityQuery) Doctor(ctx context.Context, doctorID uuid.UUID) (*Doctor, error) {
	return q.repo.GetDoctorByID(ctx, doctorID)
}

// Query reports per-date availability. A doctor that is inactive, unverified
// or does not offer the requested consultation type at all yields an empty
// result.
func (q *AvailabilityQuery) Query(ctx context.Context, req AvailabilityRequest) ([]DayAvailability, error) {
	if req.Days <= 0 {
		req.Days = 7
	}
	if req.Days > q.maxDays {
		return nil, ErrInvalidRange.With(fmt.Sprintf("days must be at most %d", q.maxDays))
	}

	doc, err := q.repo.GetDoctorByID(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doc.Bookable() {
		return []DayAvailability{}, nil
	}

	types := doc.ConsultationTypes
	if req.ConsultationType != "" {
		if !doc.Supports(req.ConsultationType) {
			return []DayAvailability{}, nil
		}
		types = []ConsultationType{req.ConsultationType}
	}

	now := q.now()
	from := Day(req.From)
	today := Today(now, q.loc)
	if req.From.IsZero() || from.Before(today) {
		from = today
	}
	to := from.AddDate(0, 0, req.Days-1)

	return q.collect(ctx, doc, types, from, to, now)
}

// FindSlot resolves one slot with its current booked count. A slot that the
// schedule does not produce (wrong time, closed date, already past) yields
// ErrSlotNotFound.
func (q *AvailabilityQuery) FindSlot(ctx context.Context, doc *Doctor, date time.Time, start Clock) (*Slot, error) {
	date = Day(date)
	days, err := q.collect(ctx, doc, doc.ConsultationTypes, date, date, q.now())
	if err != nil {
		return nil, err
	}
	for _, day := range days {
		for _, slot := range day.Slots {
			if slot.StartTime == start {
				s := slot
				return &s, nil
			}
		}
	}
	return nil, ErrSlotNotFound
}

func (q *AvailabilityQuery) collect(ctx context.Context, doc *Doctor, types []ConsultationType, from, to, now time.Time) ([]DayAvailability, error) {
	templates, err := q.repo.ListTemplates(ctx, doc.ID, true)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	byDay := make(map[time.Weekday]*WeeklyTemplate, len(templates))
	for i := range templates {
		t := &templates[i]
		// newest wins if the store ever returns two active rows
		if prev, ok := byDay[t.DayOfWeek]; !ok || t.CreatedAt.After(prev.CreatedAt) {
			byDay[t.DayOfWeek] = t
		}
	}

	overrides, err := q.repo.ListOverrides(ctx, doc.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	byDate := make(map[time.Time]*ScheduleOverride, len(overrides))
	for i := range overrides {
		byDate[Day(overrides[i].Date)] = &overrides[i]
	}

	booked, err := q.bookings.CountActiveBookings(ctx, doc.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count bookings: %w", err)
	}

	var result []DayAvailability
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		slots, err := GenerateSlots(GenerateInput{
			Date:              date,
			Template:          byDay[date.Weekday()],
			Override:          byDate[date],
			ConsultationTypes: types,
			Now:               now,
			Location:          q.loc,
		})
		if err != nil {
			if errors.Is(err, ErrConfiguration) {
				q.metrics.SlotConfigurationError()
				q.log.WithError(err).WithFields(logrus.Fields{
					"doctor_id": doc.ID,
					"date":      date.Format(DateLayout),
				}).Error("slot generation failed")
			}
			return nil, err
		}

		day := DayAvailability{Date: date, Slots: slots}
		for i := range day.Slots {
			day.Slots[i].BookedCount = booked[SlotKey{Date: date, Start: day.Slots[i].StartTime}]
			if day.Slots[i].Available() {
				day.IsAvailable = true
			}
		}
		result = append(result, day)
	}
	return result, nil
}
