// Package pricing computes transport fares. It is pure: callers resolve the
// sibling count and persist the result.
package pricing

import "math"

// TransportMode selects the service shape for a subscription.
type TransportMode string

const (
	ModeRoundTrip TransportMode = "ROUND_TRIP"
	ModeOneWay    TransportMode = "ONE_WAY"
)

// SubscriptionPeriod selects the billing cadence.
type SubscriptionPeriod string

const (
	PeriodMonthly SubscriptionPeriod = "MONTHLY"
	PeriodAnnual  SubscriptionPeriod = "ANNUAL"
)

// Unit fares in minor currency units. Annual subscriptions are billed as
// ten months up front.
const (
	RoundTripFare = 400
	OneWayFare    = 250
	AnnualMonths  = 10
)

// Quote is the result of pricing one enrollment request.
type Quote struct {
	BaseAmount     int64
	DiscountRate   float64
	DiscountAmount int64
	FinalAmount    int64
	SiblingCount   int
}

// Compute prices an enrollment for the given mode and period, discounted by
// the number of the guardian's other children already enrolled or paid:
// the first child pays full fare, the second gets 10%, the third and
// beyond 20%. Unrecognised mode or period values fall back to the
// one-way/monthly fare rather than failing.
func Compute(mode TransportMode, period SubscriptionPeriod, priorSiblings int) Quote {
	var unit int64
	switch mode {
	case ModeRoundTrip:
		unit = RoundTripFare
	default:
		unit = OneWayFare
	}

	base := unit
	if period == PeriodAnnual {
		base = unit * AnnualMonths
	}

	rate := discountRate(priorSiblings)
	discount := int64(math.Round(float64(base) * rate))

	if priorSiblings < 0 {
		priorSiblings = 0
	}
	return Quote{
		BaseAmount:     base,
		DiscountRate:   rate,
		DiscountAmount: discount,
		FinalAmount:    base - discount,
		SiblingCount:   priorSiblings,
	}
}

// MonthlyAmount derives the recurring charge backing an enrollment from a
// quoted final amount.
func MonthlyAmount(period SubscriptionPeriod, finalAmount int64) int64 {
	if period == PeriodAnnual {
		return finalAmount / AnnualMonths
	}
	return finalAmount
}

func discountRate(priorSiblings int) float64 {
	switch {
	case priorSiblings >= 2:
		return 0.20
	case priorSiblings == 1:
		return 0.10
	default:
		return 0
	}
}

// ParseMode normalises free-form input into a TransportMode, defaulting to
// one-way for unknown values.
func ParseMode(raw string) TransportMode {
	if TransportMode(raw) == ModeRoundTrip {
		return ModeRoundTrip
	}
	return ModeOneWay
}

// ParsePeriod normalises free-form input into a SubscriptionPeriod,
// defaulting to monthly for unknown values.
func ParsePeriod(raw string) SubscriptionPeriod {
	if SubscriptionPeriod(raw) == PeriodAnnual {
		return PeriodAnnual
	}
	return PeriodMonthly
}
