package appointment

import (
	"fmt"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
)

var (
	ErrInvalidTransition = apperr.BadRequest("invalid_status_transition", "invalid status transition")
	ErrRoleNotPermitted  = apperr.Forbidden("transition_not_permitted", "role not permitted for this transition")
	ErrNotBookingOwner   = apperr.Forbidden("not_booking_owner", "not allowed to act on this appointment")
)

type transition struct {
	from AppointmentStatus
	to   AppointmentStatus
}

// transitions is the complete lifecycle. Lookups are exact on (from, to); a
// caller must always ask for the immediate next state.
var transitions = map[transition][]identity.Role{
	{StatusPendingPayment, StatusConfirmed}: {identity.RoleSystem},
	{StatusConfirmed, StatusCheckedIn}:      {identity.RolePatient, identity.RoleDoctor, identity.RoleHospital, identity.RoleAdmin},
	{StatusCheckedIn, StatusInProgress}:     {identity.RoleDoctor, identity.RoleAdmin},
	{StatusInProgress, StatusCompleted}:     {identity.RoleDoctor, identity.RoleAdmin},
	{StatusConfirmed, StatusCancelled}:      {identity.RolePatient, identity.RoleDoctor, identity.RoleHospital, identity.RoleAdmin},
	{StatusCheckedIn, StatusCancelled}:      {identity.RolePatient, identity.RoleDoctor, identity.RoleHospital, identity.RoleAdmin},
	{StatusConfirmed, StatusNoShow}:         {identity.RoleDoctor, identity.RoleHospital, identity.RoleAdmin},
	{StatusConfirmed, StatusRescheduled}:    {identity.RolePatient, identity.RoleDoctor, identity.RoleHospital},
	{StatusRescheduled, StatusRescheduled}:  {identity.RolePatient, identity.RoleDoctor, identity.RoleHospital},
}

// CheckTransition validates the edge first and the role second, so a missing
// edge is always a bad request whoever asks.
func CheckTransition(role identity.Role, from, to AppointmentStatus) error {
	roles, ok := transitions[transition{from, to}]
	if !ok {
		return ErrInvalidTransition.With(fmt.Sprintf("cannot move appointment from %s to %s", from, to))
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return ErrRoleNotPermitted.With(fmt.Sprintf("%s may not move appointment from %s to %s", role, from, to))
}

// CanAccess reports whether actor may act on b at all.
func CanAccess(actor identity.Actor, b *Booking) bool {
	switch actor.Role {
	case identity.RoleAdmin, identity.RoleSystem:
		return true
	case identity.RolePatient:
		return actor.UserID == b.PatientID
	case identity.RoleDoctor:
		return actor.IsDoctor(b.DoctorID)
	case identity.RoleHospital:
		return actor.WorksAt(b.HospitalID)
	}
	return false
}

// applyStatusChange stamps the transition onto b. Stores use it so that every
// backend records the same fields for the same edge.
func applyStatusChange(b *Booking, c StatusChange) {
	at := c.At
	b.Status = c.To
	switch c.To {
	case StatusConfirmed:
		b.ConfirmedAt = &at
	case StatusCheckedIn:
		b.CheckedInAt = &at
	case StatusInProgress:
		b.StartedAt = &at
	case StatusCompleted:
		b.CompletedAt = &at
	case StatusCancelled:
		b.CancelledAt = &at
	case StatusNoShow:
		b.NoShowAt = &at
	case StatusRescheduled:
		b.RescheduledAt = &at
	}
	if c.CancelledBy != nil {
		b.CancelledBy = c.CancelledBy
	}
	if c.CancellationReason != nil {
		b.CancellationReason = c.CancellationReason
	}
	if c.RefundAmount != nil {
		b.RefundAmount = c.RefundAmount
	}
	if c.PaymentStatus != nil {
		b.PaymentStatus = *c.PaymentStatus
	}
	if c.PaymentRef != nil {
		b.PaymentRef = c.PaymentRef
	}
	b.UpdatedAt = at
}

func notifyEventFor(status AppointmentStatus) notify.Event {
	switch status {
	case StatusConfirmed:
		return notify.EventBookingConfirmed
	case StatusCheckedIn:
		return notify.EventBookingCheckedIn
	case StatusInProgress:
		return notify.EventBookingStarted
	case StatusCompleted:
		return notify.EventBookingCompleted
	case StatusCancelled:
		return notify.EventBookingCancelled
	case StatusNoShow:
		return notify.EventBookingNoShow
	case StatusRescheduled:
		return notify.EventBookingRescheduled
	}
	return notify.EventBookingCreated
}
