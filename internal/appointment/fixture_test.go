package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/notify"
	"github.com/hackgods/doctor-appointment-booking/internal/payment"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

var monday = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreatePaymentOrder(ctx context.Context, req payment.OrderRequest) (*payment.Order, error) {
	args := m.Called(ctx, req)
	order, _ := args.Get(0).(*payment.Order)
	return order, args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	return m.Called(ctx, n).Error(0)
}

// passThroughLocker takes no lock at all, leaving the store alone to enforce capacity.
type passThroughLocker struct{}

func (passThroughLocker) WithSlotLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	repo   *MemoryRepository
	sched  *schedule.MemoryRepository
	svc    *Service
	doctor schedule.Doctor
	now    time.Time
}

type fixtureOption func(*Deps)

func withPayments(g PaymentGateway) fixtureOption {
	return func(d *Deps) { d.Payments = g }
}

func withNotifier(n notify.Notifier) fixtureOption {
	return func(d *Deps) { d.Notifier = n }
}

func withLocker(l redisclient.Locker) fixtureOption {
	return func(d *Deps) { d.Locker = l }
}

func withRepoWrapper(wrap func(Repository) Repository) fixtureOption {
	return func(d *Deps) { d.Repo = wrap(d.Repo) }
}

// newFixture builds a doctor with a Monday 09:00-12:00 template of 30 minute
// slots holding capacity patients each. The clock starts on the Sunday before.
func newFixture(t *testing.T, capacity int, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		repo:  NewMemoryRepository(),
		sched: schedule.NewMemoryRepository(),
		now:   time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	f.doctor = schedule.Doctor{
		ID:                uuid.New(),
		HospitalID:        uuid.New(),
		Name:              "Dr. Mehta",
		IsActive:          true,
		IsVerified:        true,
		ConsultationTypes: []schedule.ConsultationType{schedule.ConsultationInPerson, schedule.ConsultationVideo},
		Fees: map[schedule.ConsultationType]int64{
			schedule.ConsultationInPerson: 500,
			schedule.ConsultationVideo:    0,
		},
	}
	f.sched.AddDoctor(f.doctor)

	_, err := f.sched.ReplaceActiveTemplate(context.Background(), schedule.WeeklyTemplate{
		DoctorID:            f.doctor.ID,
		DayOfWeek:           time.Monday,
		StartTime:           schedule.NewClock(9, 0),
		EndTime:             schedule.NewClock(12, 0),
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  capacity,
		IsActive:            true,
	})
	require.NoError(t, err)

	clock := func() time.Time { return f.now }
	query := schedule.NewAvailabilityQuery(f.sched, f.repo, time.UTC, logger.Discard(), schedule.WithClock(clock))

	deps := Deps{
		Repo:     f.repo,
		Slots:    query,
		Locker:   redisclient.NewLocalLocker(),
		Payments: payment.Noop{},
		Notifier: notify.NewLogNotifier(logger.Discard()),
		Log:      logger.Discard(),
		Location: time.UTC,
		Now:      clock,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	f.svc = NewService(deps)
	return f
}

func (f *fixture) patient() identity.Actor {
	return identity.Actor{UserID: uuid.New(), Role: identity.RolePatient}
}

func (f *fixture) doctorActor() identity.Actor {
	id := f.doctor.ID
	return identity.Actor{UserID: uuid.New(), Role: identity.RoleDoctor, DoctorID: &id}
}

func (f *fixture) hospitalActor() identity.Actor {
	id := f.doctor.HospitalID
	return identity.Actor{UserID: uuid.New(), Role: identity.RoleHospital, HospitalID: &id}
}

func admin() identity.Actor {
	return identity.Actor{UserID: uuid.New(), Role: identity.RoleAdmin}
}

func (f *fixture) input(patientID uuid.UUID, hour, minute int) CreateBookingInput {
	return CreateBookingInput{
		PatientID:        patientID,
		DoctorID:         f.doctor.ID,
		Date:             monday,
		StartTime:        schedule.NewClock(hour, minute),
		ConsultationType: schedule.ConsultationInPerson,
	}
}

func (f *fixture) book(t *testing.T, actor identity.Actor, hour, minute int) *Booking {
	t.Helper()
	b, _, err := f.svc.CreateBooking(context.Background(), actor, f.input(actor.UserID, hour, minute))
	require.NoError(t, err)
	return b
}

// bookConfirmed books a slot and captures its payment.
func (f *fixture) bookConfirmed(t *testing.T, actor identity.Actor, hour, minute int) *Booking {
	t.Helper()
	b := f.book(t, actor, hour, minute)
	confirmed, err := f.svc.ConfirmPayment(context.Background(), b.ID, "pay_"+b.ID.String())
	require.NoError(t, err)
	return confirmed
}

// seed stores a booking in the given status for a fresh patient, bypassing
// the engine.
func (f *fixture) seed(t *testing.T, status AppointmentStatus) *Booking {
	t.Helper()
	b, err := f.repo.InsertBookingIfCapacityAvailable(context.Background(), &Booking{
		PatientID:        uuid.New(),
		DoctorID:         f.doctor.ID,
		HospitalID:       f.doctor.HospitalID,
		Date:             monday,
		StartTime:        schedule.NewClock(9, 0),
		EndTime:          schedule.NewClock(9, 30),
		ConsultationType: schedule.ConsultationInPerson,
		Status:           status,
		ConsultationFee:  500,
		TotalAmount:      500,
		PaymentStatus:    PaymentPaid,
	}, 1000)
	require.NoError(t, err)
	return b
}

func (f *fixture) owner(b *Booking) identity.Actor {
	return identity.Actor{UserID: b.PatientID, Role: identity.RolePatient}
}

func eventTypes(events []EventLog) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.EventType)
	}
	return out
}
