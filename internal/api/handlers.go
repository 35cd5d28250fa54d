package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/appointment"
	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type BookingService interface {
	CreateBooking(ctx context.Context, actor identity.Actor, in appointment.CreateBookingInput) (*appointment.Booking, bool, error)
	GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Booking, error)
	ListAppointmentsByPatient(ctx context.Context, actor identity.Actor, patientID uuid.UUID, limit, offset int) ([]appointment.Booking, error)
	ListAppointmentsByDoctor(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time) ([]appointment.Booking, error)
	UpdateStatus(ctx context.Context, actor identity.Actor, id uuid.UUID, to appointment.AppointmentStatus, reason string) (*appointment.Booking, error)
	Cancel(ctx context.Context, actor identity.Actor, id uuid.UUID, reason string) (*appointment.Booking, error)
	Reschedule(ctx context.Context, actor identity.Actor, id uuid.UUID, in appointment.RescheduleInput) (*appointment.Booking, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID, paymentRef string) (*appointment.Booking, error)
}

func createAppointmentHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorOf(r)

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		in := appointment.CreateBookingInput{
			StartTime:        req.StartTime,
			ConsultationType: req.ConsultationType,
			IdempotencyKey:   r.Header.Get("Idempotency-Key"),
		}

		var err error
		if req.PatientID != "" {
			if in.PatientID, err = uuid.Parse(req.PatientID); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}
		if in.DoctorID, err = uuid.Parse(req.DoctorID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		if req.FamilyMemberID != "" {
			fm, err := uuid.Parse(req.FamilyMemberID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_family_member_id", "family_member_id must be a valid UUID")
				return
			}
			in.FamilyMemberID = &fm
		}
		if in.Date, err = schedule.ParseDate(req.Date); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		b, replayed, err := svc.CreateBooking(r.Context(), actor, in)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		status := http.StatusCreated
		if replayed {
			status = http.StatusOK
		}
		writeJSON(w, status, toAppointmentResponse(b))
	}
}

func getAppointmentHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		b, err := svc.GetAppointment(r.Context(), actorOf(r), id)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(b))
	}
}

// listAppointmentsHandler lists a patient's appointments. Patients default to
// their own; other roles must pass patient_id.
func listAppointmentsHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorOf(r)
		q := r.URL.Query()

		patientID := actor.UserID
		if v := q.Get("patient_id"); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		limit, err := intQuery(q.Get("limit"), 20)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		offset, err := intQuery(q.Get("offset"), 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		bookings, err := svc.ListAppointmentsByPatient(r.Context(), actor, patientID, limit, offset)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{
			Items:  toAppointmentList(bookings),
			Limit:  limit,
			Offset: offset,
		})
	}
}

func doctorAppointmentsHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		bookings, err := svc.ListAppointmentsByDoctor(r.Context(), actorOf(r), doctorID, date)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, ListResponse[AppointmentResponse]{Items: toAppointmentList(bookings)})
	}
}

func updateStatusHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		to, ok := appointment.ParseStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_status", "unknown appointment status")
			return
		}

		b, err := svc.UpdateStatus(r.Context(), actorOf(r), id, to, req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(b))
	}
}

func cancelAppointmentHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req CancelRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}

		b, err := svc.Cancel(r.Context(), actorOf(r), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(b))
	}
}

func rescheduleAppointmentHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		b, err := svc.Reschedule(r.Context(), actorOf(r), id, appointment.RescheduleInput{Date: date, StartTime: req.StartTime})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(b))
	}
}

// confirmPaymentHandler is called by the payment collaborator, which must
// present the system role.
func confirmPaymentHandler(svc BookingService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if actorOf(r).Role != identity.RoleSystem {
			writeError(w, http.StatusForbidden, "forbidden", "payment confirmation is reserved for the payment service")
			return
		}
		id, ok := uuidParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req PaymentConfirmationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		b, err := svc.ConfirmPayment(r.Context(), id, req.PaymentRef)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(b))
	}
}

// Helpers

func actorOf(r *http.Request) identity.Actor {
	actor, _ := identity.FromContext(r.Context())
	return actor
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
