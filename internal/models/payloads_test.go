package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadPayment(t *testing.T) {
	p, err := ParsePayload(EventPaymentSucceeded, json.RawMessage(
		`{"order_number":"ORD-1","payment_intent_id":"pi_123","amount_cents":4990}`))
	require.NoError(t, err)

	pay, ok := p.(*PaymentPayload)
	require.True(t, ok)
	assert.Equal(t, "ORD-1", pay.OrderRef())
	assert.Equal(t, "pi_123", pay.PaymentIntentID)
	assert.Equal(t, int64(4990), pay.AmountCents)
}

func TestParsePayloadUnknownType(t *testing.T) {
	_, err := ParsePayload("invoice_finalized", json.RawMessage(`{"order_number":"ORD-1"}`))
	assert.ErrorIs(t, err, ErrUnknownEventType)
}

func TestParsePayloadMalformed(t *testing.T) {
	cases := []struct {
		name      string
		eventType string
		raw       string
	}{
		{"invalid json", EventOrderCreated, `{"order_number":`},
		{"wrong field type", EventOrderCreated, `{"order_number":42}`},
		{"missing order number", EventPaymentSucceeded, `{"amount_cents":100}`},
		{"negative amount", EventRefundIssued, `{"order_number":"ORD-1","amount_cents":-5}`},
		{"missing subscription id", EventSubscriptionUpdated, `{"status":"active"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePayload(tc.eventType, json.RawMessage(tc.raw))
			assert.ErrorIs(t, err, ErrMalformedPayload)
		})
	}
}

func TestParsePayloadRefundDefaults(t *testing.T) {
	p, err := ParsePayload(EventRefundIssued, json.RawMessage(`{"order_number":"ORD-1"}`))
	require.NoError(t, err)

	refund, ok := p.(*RefundPayload)
	require.True(t, ok)
	assert.False(t, refund.Restock)
}

func TestParsePayloadSubscriptionHasNoOrderRef(t *testing.T) {
	p, err := ParsePayload(EventSubscriptionUpdated, json.RawMessage(
		`{"subscription_id":"sub_123","status":"past_due"}`))
	require.NoError(t, err)
	assert.Empty(t, p.OrderRef())
}

func TestParsePayloadOverrideValidation(t *testing.T) {
	_, err := ParsePayload(EventManualOverride, json.RawMessage(
		`{"order_number":"ORD-1","target_status":"shipped","reason":"r","actor":"a"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = ParsePayload(EventManualOverride, json.RawMessage(
		`{"order_number":"ORD-1","target_status":"cancelled","actor":"a"}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	p, err := ParsePayload(EventManualOverride, json.RawMessage(
		`{"order_number":"ORD-1","target_status":"cancelled","reason":"stuck after provider outage","actor":"ops@example.com","release_reservation":true}`))
	require.NoError(t, err)

	ov, ok := p.(*OverridePayload)
	require.True(t, ok)
	assert.True(t, ov.ReleaseReservation)
	assert.False(t, ov.Restock)
}
