package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type RescheduleInput struct {
	Date      time.Time
	StartTime schedule.Clock
}

// Reschedule moves the booking to a new date and start time, keeping its
// duration. The row is updated in place; on any failure it is left untouched.
func (s *Service) Reschedule(ctx context.Context, actor identity.Actor, id uuid.UUID, in RescheduleInput) (*Booking, error) {
	b, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(actor.Role, b.Status, StatusRescheduled); err != nil {
		return nil, err
	}
	if !CanAccess(actor, b) {
		return nil, ErrNotBookingOwner
	}

	date := schedule.Day(in.Date)
	if date.Equal(b.Date) && in.StartTime == b.StartTime {
		return nil, ErrInvalidBooking.With("appointment is already at this date and time")
	}

	doc, err := s.slots.Doctor(ctx, b.DoctorID)
	if err != nil {
		return nil, err
	}

	move := Reschedule{
		From:      b.Status,
		Date:      date,
		StartTime: in.StartTime,
		EndTime:   in.StartTime.Add(b.DurationMinutes()),
	}

	for attempt := 0; ; attempt++ {
		slot, err := s.slots.FindSlot(ctx, doc, date, in.StartTime)
		if err != nil {
			return nil, err
		}
		if !slot.Available() {
			s.metrics.SlotConflict()
			return nil, ErrSlotUnavailable
		}
		move.Capacity = slot.MaxCapacity
		move.At = s.now()

		var moved *Booking
		lockKey := schedule.LockKey(b.DoctorID, date, in.StartTime)
		err = s.locker.WithSlotLock(ctx, lockKey, func(lockCtx context.Context) error {
			var mvErr error
			moved, mvErr = s.repo.RescheduleIfCapacityAvailable(lockCtx, b.ID, move)
			return mvErr
		})
		switch {
		case err == nil:
			s.rescheduled(ctx, b, moved)
			return moved, nil
		case errors.Is(err, ErrStatusChanged):
			return nil, ErrConcurrentUpdate
		case !isReservationConflict(err):
			return nil, err
		}

		s.metrics.SlotConflict()
		if attempt >= maxReservationRetries {
			return nil, ErrSlotUnavailable.Wrap(err)
		}
		s.metrics.ReservationRetry()
	}
}

func (s *Service) rescheduled(ctx context.Context, before, after *Booking) {
	s.metrics.Transition(string(before.Status), string(after.Status))
	s.log.WithFields(logrus.Fields{
		"appointment_id": after.ID,
		"from_slot":      before.LockKey(),
		"to_slot":        after.LockKey(),
	}).Info("appointment rescheduled")

	s.logEvent(ctx, after.ID, EventBookingRescheduled, map[string]any{
		"from_status":     before.Status,
		"from_date":       before.Date.Format(schedule.DateLayout),
		"from_start_time": before.StartTime.String(),
		"date":            after.Date.Format(schedule.DateLayout),
		"start_time":      after.StartTime.String(),
	})
	s.notify(ctx, after, notifyEventFor(after.Status))
}
