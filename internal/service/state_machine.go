package service

import (
	"fmt"

	"commerce-service/internal/models"
)

// State is the full order lifecycle state. Payment and Fulfillment are
// projections set alongside each transition; they are never written
// independently, so illegal combinations cannot be constructed.
type State struct {
	Status      string
	Payment     string
	Fulfillment string
}

// StateOf reads an order's persisted state.
func StateOf(o *models.Order) State {
	return State{Status: o.Status, Payment: o.PaymentStatus, Fulfillment: o.FulfillmentStatus}
}

// Terminal reports whether no further transitions are legal from st, except
// the completed/failed -> refunded escape handled by the transition table.
func (st State) Terminal() bool {
	switch st.Status {
	case models.OrderStatusCompleted, models.OrderStatusCancelled,
		models.OrderStatusRefunded, models.OrderStatusFailed:
		return true
	}
	return false
}

// LedgerEffect names the inventory side effect a transition carries.
type LedgerEffect int

const (
	EffectNone LedgerEffect = iota
	// EffectReserve appends a reserve movement per order item.
	EffectReserve
	// EffectRelease returns the order's outstanding reservation to available.
	EffectRelease
	// EffectConvertSale closes the reservation and records the sale, as a
	// release+sale movement pair per item.
	EffectConvertSale
	// EffectRestock returns sold goods to stock (refund with return).
	EffectRestock
)

type transitionKey struct {
	status    string
	eventType string
}

type transition struct {
	next        string
	payment     string // "" keeps the current projection
	fulfillment string // "" keeps the current projection
	effect      LedgerEffect
	// requiresPaid fails the transition unless payment_status is already paid.
	requiresPaid bool
}

// transitions is the total function (status, event_type) -> (next, effect).
// Combinations absent from this table fail closed with ErrInvalidTransition,
// so an event type the system does not understand for a given state is
// visible rather than swallowed. Out-of-order redeliveries against terminal
// orders land here too.
var transitions = map[transitionKey]transition{
	// pending
	{models.OrderStatusPending, models.EventOrderCreated}:          {next: models.OrderStatusPending, effect: EffectReserve},
	{models.OrderStatusPending, models.EventPaymentProcessing}:     {next: models.OrderStatusProcessing, payment: models.PaymentProcessing},
	{models.OrderStatusPending, models.EventPaymentSucceeded}:      {next: models.OrderStatusProcessing, payment: models.PaymentPaid},
	{models.OrderStatusPending, models.EventPaymentActionRequired}: {next: models.OrderStatusOnHold, payment: models.PaymentRequiresAction},
	{models.OrderStatusPending, models.EventOrderCancelled}:        {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},
	{models.OrderStatusPending, models.EventCheckoutExpired}:       {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},

	// processing
	{models.OrderStatusProcessing, models.EventPaymentSucceeded}:      {next: models.OrderStatusProcessing, payment: models.PaymentPaid},
	{models.OrderStatusProcessing, models.EventFulfillmentCompleted}:  {next: models.OrderStatusCompleted, fulfillment: models.FulfillmentFulfilled, effect: EffectConvertSale, requiresPaid: true},
	{models.OrderStatusProcessing, models.EventPaymentFailed}:         {next: models.OrderStatusFailed, payment: models.PaymentFailed, effect: EffectRelease},
	{models.OrderStatusProcessing, models.EventPaymentCanceled}:       {next: models.OrderStatusFailed, payment: models.PaymentCanceled, effect: EffectRelease},
	{models.OrderStatusProcessing, models.EventRefundIssued}:          {next: models.OrderStatusRefunded, effect: EffectRelease},
	{models.OrderStatusProcessing, models.EventOrderCancelled}:        {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},
	{models.OrderStatusProcessing, models.EventCheckoutExpired}:       {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},
	{models.OrderStatusProcessing, models.EventPaymentActionRequired}: {next: models.OrderStatusOnHold, payment: models.PaymentRequiresAction},

	// on_hold resolves back to processing, or out to failed/cancelled when the
	// external scheduler emits a synthetic timeout event.
	{models.OrderStatusOnHold, models.EventPaymentActionResolved}: {next: models.OrderStatusProcessing, payment: models.PaymentProcessing},
	{models.OrderStatusOnHold, models.EventPaymentSucceeded}:      {next: models.OrderStatusProcessing, payment: models.PaymentPaid},
	{models.OrderStatusOnHold, models.EventPaymentFailed}:         {next: models.OrderStatusFailed, payment: models.PaymentFailed, effect: EffectRelease},
	{models.OrderStatusOnHold, models.EventOrderCancelled}:        {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},
	{models.OrderStatusOnHold, models.EventCheckoutExpired}:       {next: models.OrderStatusCancelled, payment: models.PaymentCanceled, fulfillment: models.FulfillmentCancelled, effect: EffectRelease},

	// terminal escapes: a paid order can be refunded after the fact.
	{models.OrderStatusCompleted, models.EventRefundIssued}: {next: models.OrderStatusRefunded, effect: EffectRestock},
	{models.OrderStatusFailed, models.EventRefundIssued}:    {next: models.OrderStatusRefunded},
}

// Next computes the transition for eventType from cur. Unknown combinations
// fail closed.
func Next(cur State, eventType string) (State, LedgerEffect, error) {
	t, ok := transitions[transitionKey{cur.Status, eventType}]
	if !ok {
		return State{}, EffectNone, fmt.Errorf("%w: %s + %s", ErrInvalidTransition, cur.Status, eventType)
	}
	if t.requiresPaid && cur.Payment != models.PaymentPaid {
		return State{}, EffectNone, fmt.Errorf("%w: %s before payment (payment_status=%s)", ErrInvalidTransition, eventType, cur.Payment)
	}

	next := State{Status: t.next, Payment: cur.Payment, Fulfillment: cur.Fulfillment}
	if t.payment != "" {
		next.Payment = t.payment
	}
	if t.fulfillment != "" {
		next.Fulfillment = t.fulfillment
	}
	return next, t.effect, nil
}
