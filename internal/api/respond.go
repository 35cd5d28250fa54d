package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

var kindStatus = map[apperr.Kind]int{
	apperr.KindNotFound:        http.StatusNotFound,
	apperr.KindBadRequest:      http.StatusBadRequest,
	apperr.KindForbidden:       http.StatusForbidden,
	apperr.KindUnauthorized:    http.StatusUnauthorized,
	apperr.KindSlotUnavailable: http.StatusConflict,
	apperr.KindConfiguration:   http.StatusInternalServerError,
	apperr.KindInternal:        http.StatusInternalServerError,
}

// writeServiceError maps a service error to its status. Only the safe message
// of a classified error reaches the client; everything else is logged and
// answered with a generic internal error.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logrus.Entry, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		log.WithError(err).WithField("request_id", GetRequestID(r.Context())).Error("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal_error", "something went wrong, please retry")
		return
	}

	status, ok := kindStatus[ae.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(logrus.Fields{
			"request_id": GetRequestID(r.Context()),
			"code":       ae.Code,
		}).Error("service error")
	}
	writeError(w, status, ae.Code, ae.Message)
}
