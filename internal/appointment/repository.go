package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

var (
	ErrAppointmentNotFound  = apperr.NotFound("appointment_not_found", "appointment not found")
	ErrFamilyMemberNotFound = apperr.NotFound("family_member_not_found", "family member not found")
	ErrDuplicateBooking     = apperr.BadRequest("duplicate_booking", "patient already has an active booking with this doctor on this date")
)

// Store-level outcomes of conditional writes. The service turns them into
// caller-facing errors.
var (
	ErrCapacityExhausted = errors.New("slot capacity exhausted")
	ErrStatusChanged     = errors.New("appointment status changed concurrently")
	ErrIdempotencyReplay = errors.New("idempotency key already used")
)

// Repository contains all store interactions needed by the booking engine.
type Repository interface {
	schedule.BookingCounter

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	GetFamilyMember(ctx context.Context, id uuid.UUID) (*FamilyMember, error)

	// FindLiveBooking returns the patient's non-terminal booking with the doctor
	// on date, or ErrAppointmentNotFound.
	FindLiveBooking(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time) (*Booking, error)
	FindByIdempotencyKey(ctx context.Context, patientID uuid.UUID, key string) (*Booking, error)

	// InsertBookingIfCapacityAvailable inserts b only if fewer than capacity
	// capacity-holding bookings exist on its slot. The check and the insert are
	// one atomic store operation. Returns ErrCapacityExhausted when full,
	// ErrDuplicateBooking or ErrIdempotencyReplay on uniqueness conflicts.
	InsertBookingIfCapacityAvailable(ctx context.Context, b *Booking, capacity int) (*Booking, error)

	// UpdateBookingStatus applies change only if the booking is still in from.
	// Returns ErrStatusChanged otherwise.
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from AppointmentStatus, change StatusChange) (*Booking, error)

	// RescheduleIfCapacityAvailable moves the booking to the new slot with the
	// same atomicity as InsertBookingIfCapacityAvailable, not counting itself.
	RescheduleIfCapacityAvailable(ctx context.Context, id uuid.UUID, r Reschedule) (*Booking, error)

	SetPaymentOrder(ctx context.Context, id uuid.UUID, orderID string) error

	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Booking, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Booking, error)

	// Event log and side-effect outbox
	InsertEvent(ctx context.Context, ev EventLog) error
	ListUndispatchedEvents(ctx context.Context, maxAttempts, limit int) ([]EventLog, error)
	MarkEventDispatched(ctx context.Context, id int64) error
	RecordEventFailure(ctx context.Context, id int64, errMsg string) error
}
