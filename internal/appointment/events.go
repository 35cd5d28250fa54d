package appointment

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

// Audit events are stored already dispatched. Outbox events stay undispatched
// until the outbox worker delivers them.
const (
	EventBookingCreated     = "BOOKING_CREATED"
	EventStatusChanged      = "BOOKING_STATUS_CHANGED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"

	OutboxPaymentOrder = "OUTBOX_PAYMENT_ORDER"
	OutboxNotification = "OUTBOX_NOTIFICATION"
)

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.WithError(err).WithField("event_type", eventType).Warn("marshal event payload")
		data = nil
	}

	apptID := appointmentID
	now := s.now()
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     now,
		DispatchedAt:  &now,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"event_type":     eventType,
			"appointment_id": appointmentID,
		}).Warn("insert event log")
	}
}

// sideEffectFailed records a failed collaborator call for the outbox worker.
// It never returns an error: the primary operation has already succeeded.
func (s *Service) sideEffectFailed(ctx context.Context, appointmentID uuid.UUID, eventType string, cause error, payload []byte) {
	s.metrics.SideEffectFailed(eventType)
	entry := s.log.WithError(cause).WithFields(logrus.Fields{
		"event_type":     eventType,
		"appointment_id": appointmentID,
	})
	entry.Warn("side effect failed, queued for retry")

	apptID := appointmentID
	lastErr := cause.Error()
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       payload,
		CreatedAt:     s.now(),
		LastError:     &lastErr,
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		entry.WithField("outbox_error", err.Error()).Error("could not queue side effect")
	}
}

func outboxPaymentPayload(bookingID uuid.UUID) []byte {
	data, _ := json.Marshal(map[string]string{"booking_id": bookingID.String()})
	return data
}

func (s *Service) createPaymentOrder(ctx context.Context, b *Booking) (string, error) {
	order, err := s.payments.CreatePaymentOrder(ctx, payment.OrderRequest{
		BookingID: b.ID,
		PatientID: b.PatientID,
		Amount:    b.TotalAmount,
	})
	if err != nil {
		return "", err
	}
	if err := s.repo.SetPaymentOrder(ctx, b.ID, order.ID); err != nil {
		return "", err
	}
	return order.ID, nil
}

func (s *Service) notify(ctx context.Context, b *Booking, event notify.Event) {
	n := notify.Notification{
		Event:     event,
		BookingID: b.ID,
		Recipient: b.PatientID,
		DoctorID:  b.DoctorID,
		Status:    string(b.Status),
		Date:      b.Date.Format(schedule.DateLayout),
		StartTime: b.StartTime.String(),
		SentAt:    s.now(),
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		payload, _ := json.Marshal(n)
		s.sideEffectFailed(ctx, b.ID, OutboxNotification, err, payload)
	}
}

// RetryPendingSideEffects delivers up to limit queued side effects and returns
// how many were dispatched. Rows that fail again keep their place until they
// reach maxAttempts.
func (s *Service) RetryPendingSideEffects(ctx context.Context, limit, maxAttempts int) (int, error) {
	events, err := s.repo.ListUndispatchedEvents(ctx, maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("list undispatched events: %w", err)
	}

	dispatched := 0
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return dispatched, err
		}

		entry := s.log.WithFields(logrus.Fields{
			"event_id":   ev.ID,
			"event_type": ev.EventType,
			"attempt":    ev.Attempts + 1,
		})

		if err := s.dispatch(ctx, ev); err != nil {
			entry.WithError(err).Warn("outbox dispatch failed")
			if recErr := s.repo.RecordEventFailure(ctx, ev.ID, err.Error()); recErr != nil {
				entry.WithError(recErr).Error("record outbox failure")
			}
			continue
		}
		if err := s.repo.MarkEventDispatched(ctx, ev.ID); err != nil {
			entry.WithError(err).Error("mark outbox event dispatched")
			continue
		}
		dispatched++
	}
	return dispatched, nil
}

func (s *Service) dispatch(ctx context.Context, ev EventLog) error {
	switch ev.EventType {
	case OutboxPaymentOrder:
		if ev.AppointmentID == nil {
			return fmt.Errorf("payment order event without appointment")
		}
		b, err := s.repo.GetAppointmentByID(ctx, *ev.AppointmentID)
		if err != nil {
			return err
		}
		// paid, cancelled or already ordered bookings need no order
		if b.Status != StatusPendingPayment || b.PaymentOrderID != nil {
			return nil
		}
		_, err = s.createPaymentOrder(ctx, b)
		return err

	case OutboxNotification:
		var n notify.Notification
		if err := json.Unmarshal(ev.Payload, &n); err != nil {
			return fmt.Errorf("decode notification: %w", err)
		}
		return s.notifier.Notify(ctx, n)
	}

	// audit rows are written dispatched; anything else here is unknown
	s.log.WithField("event_type", ev.EventType).Warn("unknown outbox event type, dropping")
	return nil
}
