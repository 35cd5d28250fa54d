package appointment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRefund_Tiers(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		before time.Duration
		want   int64
	}{
		{"two days ahead", 48 * time.Hour, 1000},
		{"exactly 24h", 24 * time.Hour, 1000},
		{"just under 24h", 24*time.Hour - time.Second, 750},
		{"exactly 4h", 4 * time.Hour, 750},
		{"just under 4h", 4*time.Hour - time.Second, 500},
		{"exactly 1h", time.Hour, 500},
		{"just under 1h", time.Hour - time.Second, 0},
		{"at start", 0, 0},
		{"after start", -2 * time.Hour, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Refund(1000, at, at.Add(-tc.before)))
		})
	}
}

func TestRefund_Rounding(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(250), Refund(333, at, at.Add(-5*time.Hour)))  // 249.75
	assert.Equal(t, int64(167), Refund(333, at, at.Add(-2*time.Hour)))  // 166.5
	assert.Equal(t, int64(0), Refund(0, at, at.Add(-48*time.Hour)))
}

func TestRefund_NonIncreasingTowardsStart(t *testing.T) {
	at := time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)
	const amount = 999

	prev := Refund(amount, at, at.Add(-72*time.Hour))
	for now := at.Add(-72 * time.Hour); now.Before(at.Add(2 * time.Hour)); now = now.Add(7 * time.Minute) {
		got := Refund(amount, at, now)
		assert.LessOrEqual(t, got, prev, "refund grew at %s", now)
		assert.Contains(t, []int64{0, 500, 749, 999}, got)
		prev = got
	}
}
