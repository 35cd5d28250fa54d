package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of the booking service. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	bookingsCreated    *prometheus.CounterVec
	bookingConflicts   prometheus.Counter
	reservationRetries prometheus.Counter
	transitions        *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	slotConfigErrors   prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookings_created_total",
				Help: "Bookings persisted, by initial status",
			},
			[]string{"status"},
		),
		bookingConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_slot_conflicts_total",
			Help: "Booking or reschedule attempts rejected because the slot was full",
		}),
		reservationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_reservation_retries_total",
			Help: "Reservations retried after losing a capacity race",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_status_transitions_total",
				Help: "Applied booking lifecycle transitions",
			},
			[]string{"from", "to"},
		),
		sideEffectFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_side_effect_failures_total",
				Help: "Payment order or notification calls that failed and were queued for retry",
			},
			[]string{"kind"},
		),
		slotConfigErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slot_generation_configuration_errors_total",
			Help: "Slot generation aborted because of malformed schedule data",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.bookingsCreated,
		m.bookingConflicts,
		m.reservationRetries,
		m.transitions,
		m.sideEffectFailures,
		m.slotConfigErrors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) BookingCreated(status string) {
	if m == nil {
		return
	}
	m.bookingsCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) SlotConflict() {
	if m == nil {
		return
	}
	m.bookingConflicts.Inc()
}

func (m *Metrics) ReservationRetry() {
	if m == nil {
		return
	}
	m.reservationRetries.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) SlotConfigurationError() {
	if m == nil {
		return
	}
	m.slotConfigErrors.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
