package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestAttributesKeepUnknownKeys(t *testing.T) {
	payload := []byte(`{"transport_mode":"ROUND_TRIP","zone":"NORTH","pickup_notes":"gate B","legacy_ref":42}`)

	var attrs RequestAttributes
	require.NoError(t, attrs.Scan(payload))
	require.Equal(t, "ROUND_TRIP", attrs.TransportMode)
	require.Equal(t, "NORTH", attrs.Zone)
	require.Contains(t, attrs.Extra, "pickup_notes")
	require.Contains(t, attrs.Extra, "legacy_ref")

	attrs.Pricing = &PricingBreakdown{BaseAmount: 400, DiscountRate: 0.10, DiscountAmount: 40, FinalAmount: 360, SiblingCount: 1}

	value, err := attrs.Value()
	require.NoError(t, err)

	var roundTrip map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(value.([]byte), &roundTrip))
	require.Contains(t, roundTrip, "pickup_notes")
	require.Contains(t, roundTrip, "legacy_ref")
	require.Contains(t, roundTrip, "pricing")
	require.NotContains(t, roundTrip, "subscription_period")
}

func TestRequestStatusTerminal(t *testing.T) {
	require.True(t, RequestStatusValidated.Terminal())
	require.True(t, RequestStatusRejected.Terminal())
	require.False(t, RequestStatusPaid.Terminal())
	require.False(t, RequestStatusPendingPayment.Terminal())
}
