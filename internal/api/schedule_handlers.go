package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type AvailabilityService interface {
	Query(ctx context.Context, req schedule.AvailabilityRequest) ([]schedule.DayAvailability, error)
}

type ScheduleService interface {
	SetWeeklyTemplate(ctx context.Context, actor identity.Actor, in schedule.TemplateInput) (*schedule.WeeklyTemplate, error)
	DeactivateTemplate(ctx context.Context, actor identity.Actor, doctorID, templateID uuid.UUID) (*schedule.WeeklyTemplate, error)
	ListTemplates(ctx context.Context, doctorID uuid.UUID, activeOnly bool) ([]schedule.WeeklyTemplate, error)
	SetOverride(ctx context.Context, actor identity.Actor, in schedule.OverrideInput) (*schedule.ScheduleOverride, error)
	RemoveOverride(ctx context.Context, actor identity.Actor, doctorID uuid.UUID, date time.Time) error
	ListOverrides(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]schedule.ScheduleOverride, error)
}

func availabilityHandler(svc AvailabilityService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		q := r.URL.Query()

		req := schedule.AvailabilityRequest{DoctorID: doctorID}
		var err error
		if req.Days, err = intQuery(q.Get("days"), 7); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer")
			return
		}
		if v := q.Get("from"); v != "" {
			if req.From, err = schedule.ParseDate(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
		}
		if v := q.Get("type"); v != "" {
			req.ConsultationType = schedule.ConsultationType(v)
			if !req.ConsultationType.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_consultation_type", "unknown consultation type")
				return
			}
		}

		days, err := svc.Query(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toAvailabilityResponse(days))
	}
}

func listTemplatesHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		activeOnly := r.URL.Query().Get("all") != "true"

		templates, err := svc.ListTemplates(r.Context(), doctorID, activeOnly)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		items := make([]TemplateResponse, 0, len(templates))
		for i := range templates {
			items = append(items, toTemplateResponse(&templates[i]))
		}
		writeJSON(w, http.StatusOK, ListResponse[TemplateResponse]{Items: items})
	}
}

func setTemplateHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		weekday, err := strconv.Atoi(chi.URLParam(r, "weekday"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0 (Sunday) through 6 (Saturday)")
			return
		}

		var req TemplateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		tpl, err := svc.SetWeeklyTemplate(r.Context(), actorOf(r), schedule.TemplateInput{
			DoctorID:            doctorID,
			DayOfWeek:           time.Weekday(weekday),
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			BreakStart:          req.BreakStart,
			BreakEnd:            req.BreakEnd,
			SlotDurationMinutes: req.SlotDurationMinutes,
			MaxPatientsPerSlot:  req.MaxPatientsPerSlot,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
	}
}

func deactivateTemplateHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		templateID, ok := uuidParam(w, r, "templateID", "invalid_template_id")
		if !ok {
			return
		}

		tpl, err := svc.DeactivateTemplate(r.Context(), actorOf(r), doctorID, templateID)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toTemplateResponse(tpl))
	}
}

func listOverridesHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		q := r.URL.Query()

		from := schedule.Day(time.Now())
		to := from.AddDate(0, 0, 30)
		var err error
		if v := q.Get("from"); v != "" {
			if from, err = schedule.ParseDate(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
			to = from.AddDate(0, 0, 30)
		}
		if v := q.Get("to"); v != "" {
			if to, err = schedule.ParseDate(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
				return
			}
		}

		overrides, err := svc.ListOverrides(r.Context(), doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		items := make([]OverrideResponse, 0, len(overrides))
		for i := range overrides {
			items = append(items, toOverrideResponse(&overrides[i]))
		}
		writeJSON(w, http.StatusOK, ListResponse[OverrideResponse]{Items: items})
	}
}

func setOverrideHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		var req OverrideRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		ov, err := svc.SetOverride(r.Context(), actorOf(r), schedule.OverrideInput{
			DoctorID:            doctorID,
			Date:                date,
			Type:                req.Type,
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			SlotDurationMinutes: req.SlotDurationMinutes,
			MaxPatientsPerSlot:  req.MaxPatientsPerSlot,
			Reason:              req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, toOverrideResponse(ov))
	}
}

func removeOverrideHandler(svc ScheduleService, log *logrus.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id", "invalid_doctor_id")
		if !ok {
			return
		}
		date, err := schedule.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		if err := svc.RemoveOverride(r.Context(), actorOf(r), doctorID, date); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
