package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/doctor-appointment-booking/internal/metrics"
)

type RouterConfig struct {
	Bookings     BookingService
	Schedules    ScheduleService
	Availability AvailabilityService

	PgPool   Pinger
	Redis    *redis.Client
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Log      *logrus.Entry

	CORSOrigins []string
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	r := chi.NewRouter()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-ID",
			headerUserID, headerUserRole, headerHospitalID, headerDoctorID},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         int((5 * time.Minute).Seconds()),
	}))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(log, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(IdentityMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Use(RequireActor)

		r.Post("/", createAppointmentHandler(cfg.Bookings, log))
		r.Get("/", listAppointmentsHandler(cfg.Bookings, log))
		r.Get("/{id}", getAppointmentHandler(cfg.Bookings, log))
		r.Patch("/{id}/status", updateStatusHandler(cfg.Bookings, log))
		r.Post("/{id}/cancel", cancelAppointmentHandler(cfg.Bookings, log))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings, log))
		r.Post("/{id}/payment-confirmation", confirmPaymentHandler(cfg.Bookings, log))
	})

	r.Route("/doctors/{id}", func(r chi.Router) {
		// Availability is public.
		r.Get("/availability", availabilityHandler(cfg.Availability, log))

		r.Group(func(r chi.Router) {
			r.Use(RequireActor)

			r.Get("/appointments", doctorAppointmentsHandler(cfg.Bookings, log))

			r.Get("/schedule/templates", listTemplatesHandler(cfg.Schedules, log))
			r.Put("/schedule/templates/{weekday}", setTemplateHandler(cfg.Schedules, log))
			r.Delete("/schedule/templates/{templateID}", deactivateTemplateHandler(cfg.Schedules, log))

			r.Get("/schedule/overrides", listOverridesHandler(cfg.Schedules, log))
			r.Put("/schedule/overrides/{date}", setOverrideHandler(cfg.Schedules, log))
			r.Delete("/schedule/overrides/{date}", removeOverrideHandler(cfg.Schedules, log))
		})
	})

	return r
}
