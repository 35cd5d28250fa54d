package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/identity"
	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// Identity headers set by the upstream gateway after authentication.
const (
	headerUserID     = "X-User-ID"
	headerUserRole   = "X-User-Role"
	headerHospitalID = "X-Hospital-ID"
	headerDoctorID   = "X-Doctor-ID"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs method, path, status, duration and request ID of
// every request and feeds the HTTP metrics.
func LoggingMiddleware(log *logrus.Entry, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap ResponseWriter to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			m.HTTPRequest(r.Method, route, wrapped.statusCode, duration)

			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"request_id":  GetRequestID(r.Context()),
			}).Info("http request")
		})
	}
}

// IdentityMiddleware reads the caller from the gateway headers. Requests
// without X-User-ID pass through anonymous; malformed headers are rejected.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerUserID) == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, err := actorFromHeaders(r.Header)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
	})
}

// RequireActor rejects anonymous requests.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := identity.FromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "caller identity is required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromHeaders(h http.Header) (identity.Actor, error) {
	userID, err := uuid.Parse(h.Get(headerUserID))
	if err != nil {
		return identity.Actor{}, errInvalidHeader(headerUserID)
	}
	role, err := identity.ParseRole(h.Get(headerUserRole))
	if err != nil {
		return identity.Actor{}, errInvalidHeader(headerUserRole)
	}

	actor := identity.Actor{UserID: userID, Role: role}
	if v := h.Get(headerHospitalID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return identity.Actor{}, errInvalidHeader(headerHospitalID)
		}
		actor.HospitalID = &id
	}
	if v := h.Get(headerDoctorID); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return identity.Actor{}, errInvalidHeader(headerDoctorID)
		}
		actor.DoctorID = &id
	}
	return actor, nil
}

type headerError string

func (e headerError) Error() string { return "invalid " + string(e) + " header" }

func errInvalidHeader(name string) error { return headerError(name) }

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
