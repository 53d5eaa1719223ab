package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeFirstChildRoundTripMonthly(t *testing.T) {
	q := Compute(ModeRoundTrip, PeriodMonthly, 0)
	assert.Equal(t, int64(400), q.BaseAmount)
	assert.Equal(t, 0.0, q.DiscountRate)
	assert.Equal(t, int64(0), q.DiscountAmount)
	assert.Equal(t, int64(400), q.FinalAmount)
}

func TestComputeSecondChildRoundTripMonthly(t *testing.T) {
	q := Compute(ModeRoundTrip, PeriodMonthly, 1)
	assert.Equal(t, int64(400), q.BaseAmount)
	assert.Equal(t, 0.10, q.DiscountRate)
	assert.Equal(t, int64(40), q.DiscountAmount)
	assert.Equal(t, int64(360), q.FinalAmount)
}

func TestComputeThirdChildOneWayAnnual(t *testing.T) {
	q := Compute(ModeOneWay, PeriodAnnual, 2)
	assert.Equal(t, int64(2500), q.BaseAmount)
	assert.Equal(t, 0.20, q.DiscountRate)
	assert.Equal(t, int64(500), q.DiscountAmount)
	assert.Equal(t, int64(2000), q.FinalAmount)
}

func TestComputeTierBoundaries(t *testing.T) {
	cases := []struct {
		siblings int
		rate     float64
	}{
		{0, 0},
		{1, 0.10},
		{2, 0.20},
		{3, 0.20},
		{7, 0.20},
	}
	for _, tc := range cases {
		q := Compute(ModeRoundTrip, PeriodMonthly, tc.siblings)
		assert.Equal(t, tc.rate, q.DiscountRate, "siblings=%d", tc.siblings)
		assert.Equal(t, q.BaseAmount-q.DiscountAmount, q.FinalAmount, "siblings=%d", tc.siblings)
	}
}

func TestComputeUnknownInputsDegradeToOneWayMonthly(t *testing.T) {
	q := Compute(TransportMode("BICYCLE"), SubscriptionPeriod("WEEKLY"), 0)
	assert.Equal(t, int64(250), q.BaseAmount)
	assert.Equal(t, int64(250), q.FinalAmount)
}

func TestComputeNegativeSiblingsClamped(t *testing.T) {
	q := Compute(ModeOneWay, PeriodMonthly, -3)
	assert.Equal(t, 0.0, q.DiscountRate)
	assert.Equal(t, 0, q.SiblingCount)
}

func TestMonthlyAmount(t *testing.T) {
	assert.Equal(t, int64(360), MonthlyAmount(PeriodMonthly, 360))
	assert.Equal(t, int64(200), MonthlyAmount(PeriodAnnual, 2000))
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, ModeRoundTrip, ParseMode("ROUND_TRIP"))
	assert.Equal(t, ModeOneWay, ParseMode("anything"))
	assert.Equal(t, PeriodAnnual, ParsePeriod("ANNUAL"))
	assert.Equal(t, PeriodMonthly, ParsePeriod(""))
}
