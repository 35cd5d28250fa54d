package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
)

var (
	ErrDoctorNotFound   = apperr.NotFound("doctor_not_found", "doctor not found")
	ErrTemplateNotFound = apperr.NotFound("template_not_found", "weekly template not found")
	ErrOverrideNotFound = apperr.NotFound("override_not_found", "schedule override not found")
)

// Repository is the Schedule Store boundary.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Weekly templates
	ListTemplates(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]WeeklyTemplate, error)
	GetTemplateByID(ctx context.Context, id uuid.UUID) (*WeeklyTemplate, error)
	// ReplaceActiveTemplate deactivates the active template for t.DayOfWeek (if any)
	// and stores t as the new active one, atomically.
	ReplaceActiveTemplate(ctx context.Context, t WeeklyTemplate) (*WeeklyTemplate, error)
	DeactivateTemplate(ctx context.Context, id uuid.UUID) (*WeeklyTemplate, error)

	// Overrides
	ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]ScheduleOverride, error)
	UpsertOverride(ctx context.Context, o ScheduleOverride) (*ScheduleOverride, error)
	DeleteOverride(ctx context.Context, doctorID uuid.UUID, date time.Time) error
}

// BookingCounter reports how many capacity-holding bookings exist per slot.
// It is implemented by the booking store.
type BookingCounter interface {
	CountActiveBookings(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (map[SlotKey]int, error)
}
