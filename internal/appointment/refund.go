package appointment

import (
	"math"
	"time"
)

// Refund returns the part of totalAmount given back when a booking starting at
// appointmentAt is cancelled at now, rounded to whole currency units.
//
//	24h or more before  100%
//	4h to 24h           75%
//	1h to 4h            50%
//	under 1h            nothing
func Refund(totalAmount int64, appointmentAt, now time.Time) int64 {
	if totalAmount <= 0 {
		return 0
	}
	return int64(math.Round(float64(totalAmount) * refundRate(appointmentAt.Sub(now))))
}

func refundRate(until time.Duration) float64 {
	switch {
	case until >= 24*time.Hour:
		return 1
	case until >= 4*time.Hour:
		return 0.75
	case until >= time.Hour:
		return 0.5
	default:
		return 0
	}
}
