package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type AppointmentStatus string

const (
	StatusPendingPayment AppointmentStatus = "pending_payment"
	StatusConfirmed      AppointmentStatus = "confirmed"
	StatusCheckedIn      AppointmentStatus = "checked_in"
	StatusInProgress     AppointmentStatus = "in_progress"
	StatusCompleted      AppointmentStatus = "completed"
	StatusCancelled      AppointmentStatus = "cancelled"
	StatusNoShow         AppointmentStatus = "no_show"
	StatusRescheduled    AppointmentStatus = "rescheduled"
)

var allStatuses = []AppointmentStatus{
	StatusPendingPayment,
	StatusConfirmed,
	StatusCheckedIn,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusNoShow,
	StatusRescheduled,
}

func ParseStatus(s string) (AppointmentStatus, bool) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// HoldsCapacity reports whether a booking in this status counts against its
// slot. Unpaid holds count too, so two pending bookings cannot share a seat.
func (s AppointmentStatus) HoldsCapacity() bool {
	return s != StatusCancelled && s != StatusNoShow
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentNotRequired   PaymentStatus = "not_required"
	PaymentRefundPending PaymentStatus = "refund_pending"
)

// SlotRef records where a booking sat before a reschedule.
type SlotRef struct {
	Date      time.Time      `json:"date"`
	StartTime schedule.Clock `json:"start_time"`
	EndTime   schedule.Clock `json:"end_time"`
}

type Booking struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	HospitalID       uuid.UUID
	FamilyMemberID   *uuid.UUID
	Date             time.Time
	StartTime        schedule.Clock
	EndTime          schedule.Clock
	ConsultationType schedule.ConsultationType
	Status           AppointmentStatus

	ConsultationFee int64
	PlatformFee     int64
	TotalAmount     int64
	PaymentStatus   PaymentStatus
	PaymentRef      *string
	PaymentOrderID  *string
	RefundAmount    *int64
	IdempotencyKey  *string

	ConfirmedAt   *time.Time
	CheckedInAt   *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	NoShowAt      *time.Time
	RescheduledAt *time.Time

	CancelledBy        *uuid.UUID
	CancellationReason *string
	RescheduledFrom    *SlotRef

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartsAt is the appointment start instant in loc.
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.StartTime.On(b.Date, loc)
}

func (b *Booking) DurationMinutes() int {
	return int(b.EndTime - b.StartTime)
}

func (b *Booking) LockKey() string {
	return schedule.LockKey(b.DoctorID, b.Date, b.StartTime)
}

type FamilyMember struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	Name      string
	Relation  *string
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	Attempts      int
	LastError     *string
}

// StatusChange is what a transition writes besides the status itself.
type StatusChange struct {
	To                 AppointmentStatus
	At                 time.Time
	CancelledBy        *uuid.UUID
	CancellationReason *string
	RefundAmount       *int64
	PaymentStatus      *PaymentStatus
	PaymentRef         *string
}

// Reschedule describes the move of a booking onto a new slot.
type Reschedule struct {
	From      AppointmentStatus
	Date      time.Time
	StartTime schedule.Clock
	EndTime   schedule.Clock
	Capacity  int
	At        time.Time
}
