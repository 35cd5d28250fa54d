package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/logger"
	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-appointment-booking/internal/redis"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type testEnv struct {
	handler http.Handler
	doctor  schedule.Doctor
}

// newTestEnv serves a doctor with a Monday 09:00-12:00 template of 30 minute
// slots. The clock is fixed on Sunday 2025-01-05 at noon.
func newTestEnv(t *testing.T, capacity int) *testEnv {
	t.Helper()

	now := func() time.Time { return time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC) }
	log := logger.Discard()

	sched := schedule.NewMemoryRepository()
	bookings := appointment.NewMemoryRepository()

	doc := schedule.Doctor{
		ID:                uuid.New(),
		HospitalID:        uuid.New(),
		Name:              "Dr. Rao",
		IsActive:          true,
		IsVerified:        true,
		ConsultationTypes: []schedule.ConsultationType{schedule.ConsultationInPerson},
		Fees:              map[schedule.ConsultationType]int64{schedule.ConsultationInPerson: 400},
	}
	sched.AddDoctor(doc)
	_, err := sched.ReplaceActiveTemplate(context.Background(), schedule.WeeklyTemplate{
		DoctorID:            doc.ID,
		DayOfWeek:           time.Monday,
		StartTime:           schedule.NewClock(9, 0),
		EndTime:             schedule.NewClock(12, 0),
		SlotDurationMinutes: 30,
		MaxPatientsPerSlot:  capacity,
		IsActive:            true,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	query := schedule.NewAvailabilityQuery(sched, bookings, time.UTC, log, schedule.WithClock(now), schedule.WithMetrics(m))
	svc := appointment.NewService(appointment.Deps{
		Repo:     bookings,
		Slots:    query,
		Locker:   redisclient.NewLocalLocker(),
		Metrics:  m,
		Log:      log,
		Location: time.UTC,
		Now:      now,
	})

	return &testEnv{
		handler: NewRouter(RouterConfig{
			Bookings:     svc,
			Schedules:    schedule.NewService(sched, log),
			Availability: query,
			Metrics:      m,
			Gatherer:     reg,
			Log:          log,
			Env:          "test",
			Version:      "test",
		}),
		doctor: doc,
	}
}

func patientActor() *identity.Actor {
	return &identity.Actor{UserID: uuid.New(), Role: identity.RolePatient}
}

func systemActor() *identity.Actor {
	return &identity.Actor{UserID: uuid.New(), Role: identity.RoleSystem}
}

func (e *testEnv) staffActor() *identity.Actor {
	id := e.doctor.HospitalID
	return &identity.Actor{UserID: uuid.New(), Role: identity.RoleHospital, HospitalID: &id}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, actor *identity.Actor, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != nil {
		req.Header.Set(headerUserID, actor.UserID.String())
		req.Header.Set(headerUserRole, string(actor.Role))
		if actor.HospitalID != nil {
			req.Header.Set(headerHospitalID, actor.HospitalID.String())
		}
		if actor.DoctorID != nil {
			req.Header.Set(headerDoctorID, actor.DoctorID.String())
		}
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) bookingBody(start string) map[string]any {
	return map[string]any{
		"doctor_id":         e.doctor.ID,
		"date":              "2025-01-06",
		"start_time":        start,
		"consultation_type": "in_person",
	}
}

func (e *testEnv) createBooking(t *testing.T, actor *identity.Actor, start string) AppointmentResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/appointments", e.bookingBody(start), actor)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppointmentResponse](t, rec)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestAppointmentsRequireIdentity(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := env.do(t, http.MethodGet, "/appointments", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/appointments", nil, nil, headerUserID, "not-a-uuid", headerUserRole, "patient")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodGet, "/appointments", nil, nil, headerUserID, uuid.NewString(), headerUserRole, "janitor")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAppointment(t *testing.T) {
	env := newTestEnv(t, 2)
	patient := patientActor()

	rec := env.do(t, http.MethodPost, "/appointments", env.bookingBody("09:30"), patient, "Idempotency-Key", "req-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[AppointmentResponse](t, rec)

	assert.Equal(t, patient.UserID, created.PatientID)
	assert.Equal(t, env.doctor.HospitalID, created.HospitalID)
	assert.Equal(t, "2025-01-06", created.Date)
	assert.Equal(t, schedule.NewClock(9, 30), created.StartTime)
	assert.Equal(t, schedule.NewClock(10, 0), created.EndTime)
	assert.Equal(t, "pending_payment", created.Status)
	assert.Equal(t, "pending", created.PaymentStatus)
	assert.Equal(t, int64(400), created.TotalAmount)

	t.Run("replay returns the original booking", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/appointments", env.bookingBody("09:30"), patient, "Idempotency-Key", "req-1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, created.ID, decode[AppointmentResponse](t, rec).ID)
	})

	t.Run("readable by its patient", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, patient)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, created.ID, decode[AppointmentResponse](t, rec).ID)

		rec = env.do(t, http.MethodGet, "/appointments", nil, patient)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[ListResponse[AppointmentResponse]](t, rec)
		require.Len(t, list.Items, 1)
		assert.Equal(t, 20, list.Limit)
	})

	t.Run("hidden from other patients", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, patientActor())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCreateAppointmentRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, 1)

	tests := []struct {
		name string
		body map[string]any
		code string
	}{
		{"bad doctor id", map[string]any{"doctor_id": "x", "date": "2025-01-06", "start_time": "09:00", "consultation_type": "in_person"}, "invalid_doctor_id"},
		{"bad date", map[string]any{"doctor_id": env.doctor.ID, "date": "06/01/2025", "start_time": "09:00", "consultation_type": "in_person"}, "invalid_date"},
		{"bad time", map[string]any{"doctor_id": env.doctor.ID, "date": "2025-01-06", "start_time": "9am", "consultation_type": "in_person"}, "invalid_request_body"},
		{"unknown field", map[string]any{"doctor_id": env.doctor.ID, "date": "2025-01-06", "start_time": "09:00", "slot_id": "abc"}, "invalid_request_body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/appointments", tt.body, patientActor())
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestCreateAppointmentFullSlotConflicts(t *testing.T) {
	env := newTestEnv(t, 1)
	env.createBooking(t, patientActor(), "09:00")

	rec := env.do(t, http.MethodPost, "/appointments", env.bookingBody("09:00"), patientActor())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)

	// a time the schedule never produces is also a conflict, not a server error
	rec = env.do(t, http.MethodPost, "/appointments", env.bookingBody("09:10"), patientActor())
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(t, 1)
	patient := patientActor()
	b := env.createBooking(t, patient, "10:00")
	path := "/appointments/" + b.ID.String() + "/status"

	rec := env.do(t, http.MethodPatch, path, map[string]any{"status": "completed"}, patient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status_transition", decode[ErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPatch, path, map[string]any{"status": "teleported"}, patient)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_status", decode[ErrorResponse](t, rec).Error)

	// pending_payment -> confirmed belongs to the payment flow
	rec = env.do(t, http.MethodPatch, path, map[string]any{"status": "confirmed"}, patient)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentConfirmationIsSystemOnly(t *testing.T) {
	env := newTestEnv(t, 1)
	patient := patientActor()
	b := env.createBooking(t, patient, "11:00")
	path := "/appointments/" + b.ID.String() + "/payment-confirmation"
	body := map[string]any{"payment_ref": "pay_123"}

	rec := env.do(t, http.MethodPost, path, body, patient)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, path, body, systemActor())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", confirmed.Status)
	assert.Equal(t, "paid", confirmed.PaymentStatus)
	assert.NotNil(t, confirmed.ConfirmedAt)

	t.Run("owner cancels with a refund", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/appointments/"+b.ID.String()+"/cancel", nil, patient)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		cancelled := decode[AppointmentResponse](t, rec)
		assert.Equal(t, "cancelled", cancelled.Status)
		assert.Equal(t, "refund_pending", cancelled.PaymentStatus)
		require.NotNil(t, cancelled.RefundAmount)
		// 23 hours ahead of the slot
		assert.Equal(t, int64(300), *cancelled.RefundAmount)
	})
}

func TestRescheduleAppointment(t *testing.T) {
	env := newTestEnv(t, 1)
	patient := patientActor()
	b := env.createBooking(t, patient, "09:00")
	env.do(t, http.MethodPost, "/appointments/"+b.ID.String()+"/payment-confirmation", map[string]any{"payment_ref": "pay_1"}, systemActor())

	rec := env.do(t, http.MethodPost, "/appointments/"+b.ID.String()+"/reschedule",
		map[string]any{"date": "2025-01-06", "start_time": "11:30"}, patient)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	moved := decode[AppointmentResponse](t, rec)
	assert.Equal(t, b.ID, moved.ID)
	assert.Equal(t, "rescheduled", moved.Status)
	assert.Equal(t, schedule.NewClock(11, 30), moved.StartTime)
	require.NotNil(t, moved.RescheduledFrom)
	assert.Equal(t, schedule.NewClock(9, 0), moved.RescheduledFrom.StartTime)

	// the freed seat is bookable again
	env.createBooking(t, patientActor(), "09:00")
}

func TestAvailabilityIsPublic(t *testing.T) {
	env := newTestEnv(t, 2)
	path := "/doctors/" + env.doctor.ID.String() + "/availability?from=2025-01-06&days=1"

	rec := env.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	days := decode[[]DayAvailabilityResponse](t, rec)
	require.Len(t, days, 1)
	assert.Equal(t, "2025-01-06", days[0].Date)
	assert.True(t, days[0].IsAvailable)
	require.Len(t, days[0].Slots, 6)
	assert.Equal(t, schedule.NewClock(9, 0), days[0].Slots[0].StartTime)
	assert.Equal(t, 2, days[0].Slots[0].Remaining)

	env.createBooking(t, patientActor(), "09:00")

	days = decode[[]DayAvailabilityResponse](t, env.do(t, http.MethodGet, path, nil, nil))
	assert.Equal(t, 1, days[0].Slots[0].BookedCount)
	assert.Equal(t, 1, days[0].Slots[0].Remaining)

	t.Run("bad query", func(t *testing.T) {
		base := "/doctors/" + env.doctor.ID.String() + "/availability"
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"?days=abc", nil, nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"?type=telepathy", nil, nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/doctors/nope/availability", nil, nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/doctors/"+uuid.NewString()+"/availability", nil, nil).Code)
	})
}

func TestScheduleManagement(t *testing.T) {
	env := newTestEnv(t, 1)
	staff := env.staffActor()
	base := "/doctors/" + env.doctor.ID.String() + "/schedule"

	tpl := map[string]any{
		"start_time":            "14:00",
		"end_time":              "16:00",
		"slot_duration_minutes": 20,
		"max_patients_per_slot": 3,
	}

	rec := env.do(t, http.MethodPut, base+"/templates/2", tpl, patientActor())
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, base+"/templates/2", tpl, staff)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[TemplateResponse](t, rec)
	assert.Equal(t, int(time.Tuesday), saved.DayOfWeek)
	assert.True(t, saved.IsActive)

	rec = env.do(t, http.MethodGet, base+"/templates", nil, staff)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[ListResponse[TemplateResponse]](t, rec).Items, 2)

	rec = env.do(t, http.MethodDelete, base+"/templates/"+saved.ID.String(), nil, staff)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[TemplateResponse](t, rec).IsActive)

	t.Run("holiday closes the day", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, base+"/overrides/2025-01-06", map[string]any{"type": "holiday", "reason": "clinic closed"}, staff)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		days := decode[[]DayAvailabilityResponse](t, env.do(t, http.MethodGet,
			"/doctors/"+env.doctor.ID.String()+"/availability?from=2025-01-06&days=1", nil, nil))
		require.Len(t, days, 1)
		assert.False(t, days[0].IsAvailable)
		assert.Empty(t, days[0].Slots)

		rec = env.do(t, http.MethodGet, base+"/overrides?from=2025-01-01&to=2025-01-31", nil, staff)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[ListResponse[OverrideResponse]](t, rec).Items, 1)

		rec = env.do(t, http.MethodDelete, base+"/overrides/2025-01-06", nil, staff)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

type failingBookings struct {
	BookingService
}

func (failingBookings) GetAppointment(context.Context, identity.Actor, uuid.UUID) (*appointment.Booking, error) {
	return nil, errors.New("dial tcp 10.0.0.5:5432: connection refused")
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := NewRouter(RouterConfig{Bookings: failingBookings{}, Log: logger.Discard()})

	req := httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil)
	req.Header.Set(headerUserID, uuid.NewString())
	req.Header.Set(headerUserRole, "patient")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.Equal(t, "internal_error", decode[ErrorResponse](t, rec).Error)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, 1)

	rec := env.do(t, http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[LivenessResponse](t, rec).Status)

	rec = env.do(t, http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
