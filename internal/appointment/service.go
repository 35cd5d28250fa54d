package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

var (
	ErrSlotUnavailable    = apperr.New(apperr.KindSlotUnavailable, "slot_unavailable", "the requested slot is no longer available")
	ErrDoctorNotBookable  = apperr.BadRequest("doctor_not_bookable", "doctor is not accepting bookings")
	ErrInvalidBooking     = apperr.BadRequest("invalid_booking", "invalid booking request")
	ErrConcurrentUpdate   = apperr.BadRequest("appointment_status_changed", "appointment changed while processing, reload and retry")
	ErrBookingNotAllowed  = apperr.Forbidden("booking_not_allowed", "not allowed to book for this patient or doctor")
	ErrUseReschedule      = apperr.BadRequest("use_reschedule", "rescheduling needs a new date and time, use the reschedule operation")
	ErrPaymentRefMismatch = apperr.BadRequest("payment_ref_mismatch", "appointment already confirmed with another payment reference")

	ErrIdempotencyKeyReused = apperr.BadRequest("idempotency_key_reused", "idempotency key was already used for a different booking request")
)

// maxReservationRetries bounds how often a lost capacity race is retried
// before the caller gets ErrSlotUnavailable.
const maxReservationRetries = 1

// SlotFinder is the part of the availability query the booking engine needs.
type SlotFinder interface {
	Doctor(ctx context.Context, doctorID uuid.UUID) (*schedule.Doctor, error)
	FindSlot(ctx context.Context, doc *schedule.Doctor, date time.Time, start schedule.Clock) (*schedule.Slot, error)
}

type PaymentGateway interface {
	CreatePaymentOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error)
}

type Deps struct {
	Repo     Repository
	Slots    SlotFinder
	Locker   redisclient.Locker
	Pricing  PricingPolicy
	Payments PaymentGateway
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Log      *logrus.Entry
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	slots    SlotFinder
	locker   redisclient.Locker
	pricing  PricingPolicy
	payments PaymentGateway
	notifier notify.Notifier
	metrics  *metrics.Metrics
	log      *logrus.Entry
	loc      *time.Location
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		slots:    d.Slots,
		locker:   d.Locker,
		pricing:  d.Pricing,
		payments: d.Payments,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		log:      d.Log,
		loc:      d.Location,
		now:      d.Now,
	}
	if s.locker == nil {
		s.locker = redisclient.NewLocalLocker()
	}
	if s.pricing == nil {
		s.pricing = PassThrough{}
	}
	if s.payments == nil {
		s.payments = payment.Noop{}
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(s.log)
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateBookingInput struct {
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	FamilyMemberID   *uuid.UUID
	Date             time.Time
	StartTime        schedule.Clock
	ConsultationType schedule.ConsultationType
	IdempotencyKey   string
}

// CreateBooking reserves a slot for a patient. The returned flag is true when
// the idempotency key matched an earlier booking, which is returned unchanged.
func (s *Service) CreateBooking(ctx context.Context, actor identity.Actor, in CreateBookingInput) (*Booking, bool, error) {
	if in.PatientID == uuid.Nil && actor.Role == identity.RolePatient {
		in.PatientID = actor.UserID
	}
	if in.PatientID == uuid.Nil || in.DoctorID == uuid.Nil {
		return nil, false, ErrInvalidBooking.With("patient_id and doctor_id are required")
	}
	if !in.ConsultationType.Valid() {
		return nil, false, ErrInvalidBooking.With("unknown consultation type")
	}
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)

	if prior, ok, err := s.replay(ctx, in); ok || err != nil {
		return prior, ok, err
	}

	doc, err := s.slots.Doctor(ctx, in.DoctorID)
	if err != nil {
		return nil, false, err
	}
	if err := authorizeBooking(actor, in.PatientID, doc); err != nil {
		return nil, false, err
	}
	if !doc.Bookable() {
		return nil, false, ErrDoctorNotBookable
	}
	if !doc.Supports(in.ConsultationType) {
		return nil, false, schedule.ErrUnsupportedType
	}

	if in.FamilyMemberID != nil {
		fm, err := s.repo.GetFamilyMember(ctx, *in.FamilyMemberID)
		if err != nil {
			return nil, false, err
		}
		if fm.PatientID != in.PatientID {
			return nil, false, ErrFamilyMemberNotFound
		}
	}

	date := schedule.Day(in.Date)
	if _, err := s.repo.FindLiveBooking(ctx, in.PatientID, in.DoctorID, date); err == nil {
		// the live booking may be a concurrent request carrying the same key
		if prior, ok, err := s.replay(ctx, in); ok || err != nil {
			return prior, ok, err
		}
		return nil, false, ErrDuplicateBooking
	} else if !errors.Is(err, ErrAppointmentNotFound) {
		return nil, false, fmt.Errorf("check duplicate booking: %w", err)
	}

	quote := s.pricing.Quote(doc, in.ConsultationType)
	b := &Booking{
		PatientID:        in.PatientID,
		DoctorID:         doc.ID,
		HospitalID:       doc.HospitalID,
		FamilyMemberID:   in.FamilyMemberID,
		Date:             date,
		StartTime:        in.StartTime,
		ConsultationType: in.ConsultationType,
		Status:           StatusPendingPayment,
		ConsultationFee:  quote.ConsultationFee,
		PlatformFee:      quote.PlatformFee,
		TotalAmount:      quote.TotalAmount,
		PaymentStatus:    PaymentPending,
	}
	if b.TotalAmount == 0 {
		now := s.now()
		b.Status = StatusConfirmed
		b.PaymentStatus = PaymentNotRequired
		b.ConfirmedAt = &now
	}
	if in.IdempotencyKey != "" {
		key := in.IdempotencyKey
		b.IdempotencyKey = &key
	}

	saved, err := s.reserve(ctx, doc, b)
	if err != nil {
		if in.IdempotencyKey != "" && lostToSameKey(err) {
			prior, ok, replayErr := s.replay(ctx, in)
			if ok || replayErr != nil {
				return prior, ok, replayErr
			}
			if errors.Is(err, ErrIdempotencyReplay) {
				return nil, false, fmt.Errorf("load replayed booking: %w", err)
			}
		}
		return nil, false, err
	}

	s.metrics.BookingCreated(string(saved.Status))
	s.log.WithFields(logrus.Fields{
		"appointment_id": saved.ID,
		"doctor_id":      saved.DoctorID,
		"slot":           saved.LockKey(),
		"status":         saved.Status,
	}).Info("booking created")

	s.logEvent(ctx, saved.ID, EventBookingCreated, map[string]any{
		"patient_id":   saved.PatientID.String(),
		"doctor_id":    saved.DoctorID.String(),
		"date":         saved.Date.Format(schedule.DateLayout),
		"start_time":   saved.StartTime.String(),
		"status":       saved.Status,
		"total_amount": saved.TotalAmount,
	})

	if saved.Status == StatusPendingPayment {
		if orderID, err := s.createPaymentOrder(ctx, saved); err != nil {
			s.sideEffectFailed(ctx, saved.ID, OutboxPaymentOrder, err, outboxPaymentPayload(saved.ID))
		} else {
			saved.PaymentOrderID = &orderID
		}
	}
	s.notify(ctx, saved, notifyEventFor(saved.Status))

	return saved, false, nil
}

// replay returns the booking already stored under the request's idempotency
// key. ok is false when the key is unused. A key stored with a different
// doctor, date, start time or consultation type is rejected.
func (s *Service) replay(ctx context.Context, in CreateBookingInput) (*Booking, bool, error) {
	if in.IdempotencyKey == "" {
		return nil, false, nil
	}
	prior, err := s.repo.FindByIdempotencyKey(ctx, in.PatientID, in.IdempotencyKey)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if prior.DoctorID != in.DoctorID ||
		!schedule.Day(prior.Date).Equal(schedule.Day(in.Date)) ||
		prior.StartTime != in.StartTime ||
		prior.ConsultationType != in.ConsultationType {
		return nil, false, ErrIdempotencyKeyReused
	}
	return prior, true, nil
}

// lostToSameKey reports errors a request can get when another request with
// the same idempotency key booked first.
func lostToSameKey(err error) bool {
	return errors.Is(err, ErrIdempotencyReplay) ||
		errors.Is(err, ErrSlotUnavailable) ||
		errors.Is(err, ErrCapacityExhausted) ||
		errors.Is(err, ErrDuplicateBooking)
}

// reserve runs the check-and-insert under the slot lock. A lost race is
// retried once against fresh availability.
func (s *Service) reserve(ctx context.Context, doc *schedule.Doctor, b *Booking) (*Booking, error) {
	for attempt := 0; ; attempt++ {
		slot, err := s.slots.FindSlot(ctx, doc, b.Date, b.StartTime)
		if err != nil {
			return nil, err
		}
		if !slot.Available() {
			s.metrics.SlotConflict()
			return nil, ErrSlotUnavailable
		}
		b.EndTime = slot.EndTime

		var saved *Booking
		err = s.locker.WithSlotLock(ctx, b.LockKey(), func(lockCtx context.Context) error {
			var insErr error
			saved, insErr = s.repo.InsertBookingIfCapacityAvailable(lockCtx, b, slot.MaxCapacity)
			return insErr
		})
		if err == nil {
			return saved, nil
		}
		if !isReservationConflict(err) {
			return nil, err
		}

		s.metrics.SlotConflict()
		if attempt >= maxReservationRetries {
			return nil, ErrSlotUnavailable.Wrap(err)
		}
		s.metrics.ReservationRetry()
		s.log.WithField("slot", b.LockKey()).Debug("reservation conflict, retrying")
	}
}

func isReservationConflict(err error) bool {
	return errors.Is(err, ErrCapacityExhausted) || errors.Is(err, redisclient.ErrLockNotAcquired)
}

// authorizeBooking: patients book for themselves, hospital staff for doctors of
// their hospital, admins for anyone.
func authorizeBooking(actor identity.Actor, patientID uuid.UUID, doc *schedule.Doctor) error {
	switch actor.Role {
	case identity.RoleAdmin:
		return nil
	case identity.RolePatient:
		if actor.UserID == patientID {
			return nil
		}
	case identity.RoleHospital:
		if actor.WorksAt(doc.HospitalID) {
			return nil
		}
	}
	return ErrBookingNotAllowed
}

func (s *Service) loadForActor(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAccess(actor, b) {
		return nil, ErrNotBookingOwner
	}
	return b, nil
}

// UpdateStatus applies one lifecycle transition. Cancellation goes through
// Cancel so that the refund is always computed; rescheduling needs Reschedule.
func (s *Service) UpdateStatus(ctx context.Context, actor identity.Actor, id uuid.UUID, to AppointmentStatus, reason string) (*Booking, error) {
	b, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(actor.Role, b.Status, to); err != nil {
		return nil, err
	}
	if to == StatusRescheduled {
		return nil, ErrUseReschedule
	}
	if !CanAccess(actor, b) {
		return nil, ErrNotBookingOwner
	}
	if to == StatusCancelled {
		return s.cancel(ctx, actor, b, reason)
	}
	return s.transition(ctx, b, StatusChange{To: to, At: s.now()})
}

// Cancel moves a booking to cancelled and records the refund owed under the
// refund policy.
func (s *Service) Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*Booking, error) {
	b, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CheckTransition(actor.Role, b.Status, StatusCancelled); err != nil {
		return nil, err
	}
	if !CanAccess(actor, b) {
		return nil, ErrNotBookingOwner
	}
	return s.cancel(ctx, actor, b, reason)
}

func (s *Service) cancel(ctx context.Context, actor identity.Actor, b *Booking, reason string) (*Booking, error) {
	now := s.now()
	refund := Refund(b.TotalAmount, b.StartsAt(s.loc), now)

	by := actor.UserID
	change := StatusChange{
		To:           StatusCancelled,
		At:           now,
		CancelledBy:  &by,
		RefundAmount: &refund,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		change.CancellationReason = &reason
	}
	if refund > 0 && b.PaymentStatus == PaymentPaid {
		ps := PaymentRefundPending
		change.PaymentStatus = &ps
	}
	return s.transition(ctx, b, change)
}

// ConfirmPayment is the payment collaborator's capture callback. A repeated
// callback with the same reference returns the confirmed booking.
func (s *Service) ConfirmPayment(ctx context.Context, id uuid.UUID, paymentRef string) (*Booking, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, ErrInvalidBooking.With("payment_ref is required")
	}

	b, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != StatusPendingPayment && b.PaymentRef != nil {
		if *b.PaymentRef == paymentRef {
			return b, nil
		}
		return nil, ErrPaymentRefMismatch
	}
	if err := CheckTransition(identity.RoleSystem, b.Status, StatusConfirmed); err != nil {
		return nil, err
	}

	paid := PaymentPaid
	return s.transition(ctx, b, StatusChange{
		To:            StatusConfirmed,
		At:            s.now(),
		PaymentStatus: &paid,
		PaymentRef:    &paymentRef,
	})
}

func (s *Service) transition(ctx context.Context, b *Booking, change StatusChange) (*Booking, error) {
	from := b.Status
	updated, err := s.repo.UpdateBookingStatus(ctx, b.ID, from, change)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.metrics.Transition(string(from), string(updated.Status))
	s.log.WithFields(logrus.Fields{
		"appointment_id": updated.ID,
		"from":           from,
		"to":             updated.Status,
	}).Info("appointment status changed")

	payload := map[string]any{
		"from": from,
		"to":   updated.Status,
	}
	if updated.Status == StatusCancelled && updated.RefundAmount != nil {
		payload["refund_amount"] = *updated.RefundAmount
	}
	s.logEvent(ctx, updated.ID, EventStatusChanged, payload)
	s.notify(ctx, updated, notifyEventFor(updated.Status))

	return updated, nil
}

// GetAppointment returns a booking the actor may see.
func (s *Service) GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Booking, error) {
	return s.loadForActor(ctx, actor, id)
}

// ListAppointmentsByPatient pages through a patient's bookings, newest first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, actor identity.Actor, patientID uuid.UUID, limit, offset int) ([]Booking, error) {
	if !actor.IsPrivileged() && !(actor.Role == identity.RolePatient && actor.UserID == patientID) {
		return nil, ErrNotBookingOwner
	}
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	bookings, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return bookings, nil
}

// ListAppointmentsByDoctor returns the doctor's bookings for one day, for the
// doctor themself, staff of the doctor's hospital and admins.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time) ([]Booking, error) {
	doc, err := s.slots.Doctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if !actor.IsPrivileged() && !actor.IsDoctor(doc.ID) && !actor.WorksAt(doc.HospitalID) {
		return nil, ErrNotBookingOwner
	}

	bookings, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, schedule.Day(date))
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return bookings, nil
}
