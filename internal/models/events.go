package models

import (
	"encoding/json"
	"time"
)

// Outbound event types, published to Kafka after a dispatcher transaction
// commits. Consumed by the (external) notification pipeline.
const (
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeStockAlertRaised   = "STOCK_ALERT_RAISED"
)

// BaseEvent contains common fields for all outbound events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent is published whenever a transition commits.
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID         int64  `json:"order_id"`
	OrderNumber     string `json:"order_number"`
	FromStatus      string `json:"from_status"`
	ToStatus        string `json:"to_status"`
	PaymentStatus   string `json:"payment_status"`
	ProviderEventID string `json:"provider_event_id"`
}

// StockAlertRaisedEvent is published when the alert monitor creates an alert.
type StockAlertRaisedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id,omitempty"`
	AlertType string `json:"alert_type"`
	Threshold int    `json:"threshold"`
}

// SchedulerEvent is the envelope consumed from the scheduler topic. It mirrors
// the webhook envelope so synthetic events (hold timeouts, checkout expiry)
// flow through the same dispatch path as provider deliveries.
type SchedulerEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}
