package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Provider event types understood by the dispatcher.
const (
	EventOrderCreated          = "order_created"
	EventPaymentProcessing     = "payment_processing"
	EventPaymentSucceeded      = "payment_succeeded"
	EventPaymentFailed         = "payment_failed"
	EventPaymentCanceled       = "payment_canceled"
	EventPaymentActionRequired = "payment_action_required"
	EventPaymentActionResolved = "payment_action_resolved"
	EventCheckoutExpired       = "checkout_expired"
	EventOrderCancelled        = "order_cancelled"
	EventFulfillmentCompleted  = "fulfillment_completed"
	EventRefundIssued          = "refund_issued"
	EventSubscriptionUpdated   = "subscription_updated"
	EventManualOverride        = "manual_override"
)

var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed event payload")
)

var validate = validator.New()

// Payload is the decoded, validated body of an InboundEvent. Each event type
// maps to exactly one concrete payload struct; unknown types fail closed.
type Payload interface {
	// OrderRef returns the order_number the event targets, or "" for events
	// that do not reference an order (subscription lifecycle).
	OrderRef() string
}

// PaymentPayload covers payment_* and checkout/cancellation events.
type PaymentPayload struct {
	OrderNumber     string `json:"order_number" validate:"required"`
	PaymentIntentID string `json:"payment_intent_id"`
	AmountCents     int64  `json:"amount_cents" validate:"gte=0"`
	Reason          string `json:"reason"`
}

func (p *PaymentPayload) OrderRef() string { return p.OrderNumber }

// OrderCreatedPayload asks for the order's reservation to be taken.
type OrderCreatedPayload struct {
	OrderNumber string `json:"order_number" validate:"required"`
}

func (p *OrderCreatedPayload) OrderRef() string { return p.OrderNumber }

// FulfillmentPayload marks the order's goods as handed off.
type FulfillmentPayload struct {
	OrderNumber string `json:"order_number" validate:"required"`
	Carrier     string `json:"carrier"`
	TrackingID  string `json:"tracking_id"`
}

func (p *FulfillmentPayload) OrderRef() string { return p.OrderNumber }

// RefundPayload carries a provider refund. Restock says whether goods came
// back; a refunded digital order carries Restock=false and touches no stock.
type RefundPayload struct {
	OrderNumber string `json:"order_number" validate:"required"`
	RefundID    string `json:"refund_id"`
	AmountCents int64  `json:"amount_cents" validate:"gte=0"`
	Restock     bool   `json:"restock"`
}

func (p *RefundPayload) OrderRef() string { return p.OrderNumber }

// SubscriptionPayload is recorded for audit but drives no order transition;
// subscription billing is owned by the provider.
type SubscriptionPayload struct {
	SubscriptionID   string `json:"subscription_id" validate:"required"`
	Status           string `json:"status" validate:"required"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
}

func (p *SubscriptionPayload) OrderRef() string { return "" }

// OverridePayload is the synthetic payload behind an audited admin
// force-transition. Actor and Reason are mandatory so the audit trail is
// useful during incident review.
type OverridePayload struct {
	OrderNumber        string `json:"order_number" validate:"required"`
	TargetStatus       string `json:"target_status" validate:"required,oneof=pending processing on_hold completed cancelled refunded failed"`
	Reason             string `json:"reason" validate:"required"`
	Actor              string `json:"actor" validate:"required"`
	ReleaseReservation bool   `json:"release_reservation"`
	Restock            bool   `json:"restock"`
}

func (p *OverridePayload) OrderRef() string { return p.OrderNumber }

// ParsePayload decodes and validates raw provider JSON against the schema for
// eventType. Unknown types and schema violations are permanent failures; the
// event is recorded and rejected, never partially matched.
func ParsePayload(eventType string, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch eventType {
	case EventOrderCreated:
		p = &OrderCreatedPayload{}
	case EventPaymentProcessing, EventPaymentSucceeded, EventPaymentFailed,
		EventPaymentCanceled, EventPaymentActionRequired, EventPaymentActionResolved,
		EventCheckoutExpired, EventOrderCancelled:
		p = &PaymentPayload{}
	case EventFulfillmentCompleted:
		p = &FulfillmentPayload{}
	case EventRefundIssued:
		p = &RefundPayload{}
	case EventSubscriptionUpdated:
		p = &SubscriptionPayload{}
	case EventManualOverride:
		p = &OverridePayload{}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return p, nil
}
