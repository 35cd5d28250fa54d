package appointment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/doctor-appointment-booking/internal/schedule"
)

func TestPricingPolicies(t *testing.T) {
	doc := &schedule.Doctor{Fees: map[schedule.ConsultationType]int64{schedule.ConsultationInPerson: 800}}

	assert.Equal(t, Quote{ConsultationFee: 800, TotalAmount: 800}, PassThrough{}.Quote(doc, schedule.ConsultationInPerson))
	assert.Equal(t, Quote{}, PassThrough{}.Quote(doc, schedule.ConsultationVideo))

	q := PercentagePlatformFee{Percent: 2.5}.Quote(doc, schedule.ConsultationInPerson)
	assert.Equal(t, Quote{ConsultationFee: 800, PlatformFee: 20, TotalAmount: 820}, q)

	assert.IsType(t, PassThrough{}, NewPricingPolicy(0))
	assert.Equal(t, PercentagePlatformFee{Percent: 5}, NewPricingPolicy(5))
}
