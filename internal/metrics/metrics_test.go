package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Records(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.BookingCreated("pending_payment")
	m.BookingCreated("pending_payment")
	m.SlotConflict()
	m.Transition("confirmed", "cancelled")
	m.HTTPRequest("POST", "/appointments", 201, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsCreated.WithLabelValues("pending_payment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("confirmed", "cancelled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/appointments", "201")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.BookingCreated("confirmed")
		m.SideEffectFailed("notification")
		m.HTTPRequest("GET", "/", 200, time.Millisecond)
	})
}
