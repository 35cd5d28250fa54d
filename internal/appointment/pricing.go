package appointment

import (
	"math"

	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

type Quote struct {
	ConsultationFee int64
	PlatformFee     int64
	TotalAmount     int64
}

// PricingPolicy turns a doctor's fee schedule into the amounts stored on a booking.
type PricingPolicy interface {
	Quote(doc *schedule.Doctor, ct schedule.ConsultationType) Quote
}

// PassThrough charges the consultation fee and nothing else.
type PassThrough struct{}

func (PassThrough) Quote(doc *schedule.Doctor, ct schedule.ConsultationType) Quote {
	fee := doc.Fees[ct]
	return Quote{ConsultationFee: fee, TotalAmount: fee}
}

// PercentagePlatformFee adds Percent of the consultation fee on top.
type PercentagePlatformFee struct {
	Percent float64
}

func (p PercentagePlatformFee) Quote(doc *schedule.Doctor, ct schedule.ConsultationType) Quote {
	fee := doc.Fees[ct]
	platform := int64(math.Round(float64(fee) * p.Percent / 100))
	return Quote{ConsultationFee: fee, PlatformFee: platform, TotalAmount: fee + platform}
}

// NewPricingPolicy picks the policy for a configured platform fee percentage.
func NewPricingPolicy(percent float64) PricingPolicy {
	if percent <= 0 {
		return PassThrough{}
	}
	return PercentagePlatformFee{Percent: percent}
}
