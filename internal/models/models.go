package models

import (
	"encoding/json"
	"time"
)

// Order statuses, the dominant lifecycle axis. Transitions between them are
// owned exclusively by the dispatcher; nothing else writes these columns.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusOnHold     = "on_hold"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// Payment statuses mirror the provider's view, decoupled from order status.
const (
	PaymentRequiresPaymentMethod = "requires_payment_method"
	PaymentRequiresConfirmation  = "requires_confirmation"
	PaymentRequiresAction        = "requires_action"
	PaymentProcessing            = "processing"
	PaymentPaid                  = "paid"
	PaymentFailed                = "failed"
	PaymentCanceled              = "canceled"
	PaymentNotRequired           = "no_payment_required"
)

// Fulfillment statuses.
const (
	FulfillmentUnfulfilled = "unfulfilled"
	FulfillmentPartial     = "partial"
	FulfillmentFulfilled   = "fulfilled"
	FulfillmentShipped     = "shipped"
	FulfillmentDelivered   = "delivered"
	FulfillmentReturned    = "returned"
	FulfillmentCancelled   = "cancelled"
)

// Movement reasons.
const (
	MovementReserve    = "reserve"
	MovementRelease    = "release"
	MovementSale       = "sale"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

// Alert types.
const (
	AlertLowStock    = "low_stock"
	AlertOutOfStock  = "out_of_stock"
	AlertBackInStock = "back_in_stock"
)

// InboundEvent is one provider notification. provider_event_id carries a
// unique constraint; it doubles as the idempotency key.
type InboundEvent struct {
	ID               int64           `db:"id" json:"id"`
	ProviderEventID  string          `db:"provider_event_id" json:"provider_event_id"`
	EventType        string          `db:"event_type" json:"event_type"`
	Payload          json.RawMessage `db:"payload" json:"payload"`
	ReceivedAt       time.Time       `db:"received_at" json:"received_at"`
	Processed        bool            `db:"processed" json:"processed"`
	Success          bool            `db:"success" json:"success"`
	ProcessingTimeMs int64           `db:"processing_time_ms" json:"processing_time_ms"`
	ErrorMessage     string          `db:"error_message" json:"error_message,omitempty"`
}

// Order is a customer order. Status fields move only through state machine
// transitions; orders are never hard-deleted.
type Order struct {
	ID                int64     `db:"id" json:"id"`
	OrderNumber       string    `db:"order_number" json:"order_number"`
	CustomerEmail     string    `db:"customer_email" json:"customer_email"`
	Status            string    `db:"status" json:"status"`
	PaymentStatus     string    `db:"payment_status" json:"payment_status"`
	FulfillmentStatus string    `db:"fulfillment_status" json:"fulfillment_status"`
	TotalAmount       int64     `db:"total_amount" json:"total_amount"`
	Currency          string    `db:"currency" json:"currency"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// OrderItem is one line of an order. Quantity is always > 0.
type OrderItem struct {
	ID          int64 `db:"id" json:"id"`
	OrderID     int64 `db:"order_id" json:"order_id"`
	ProductID   int64 `db:"product_id" json:"product_id"`
	VariantID   int64 `db:"variant_id" json:"variant_id,omitempty"`
	Quantity    int   `db:"quantity" json:"quantity"`
	UnitAmount  int64 `db:"unit_amount" json:"unit_amount"`
	TotalAmount int64 `db:"total_amount" json:"total_amount"`
}

// SKU identifies a stock-keeping unit. VariantID zero means the product has
// no variants.
type SKU struct {
	ProductID int64 `json:"product_id"`
	VariantID int64 `json:"variant_id,omitempty"`
}

// InventoryMovement is one append-only ledger entry. Rows are never updated
// or deleted; corrections are compensating adjustment movements.
type InventoryMovement struct {
	ID             int64     `db:"id" json:"id"`
	ProductID      int64     `db:"product_id" json:"product_id"`
	VariantID      int64     `db:"variant_id" json:"variant_id,omitempty"`
	Delta          int       `db:"delta" json:"delta"`
	Reason         string    `db:"reason" json:"reason"`
	RelatedOrderID int64     `db:"related_order_id" json:"related_order_id,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// SKU returns the movement's stock-keeping unit.
func (m *InventoryMovement) SKU() SKU {
	return SKU{ProductID: m.ProductID, VariantID: m.VariantID}
}

// StockLevel is the fold over a SKU's movements.
// Available = OnHand - Reserved, always.
type StockLevel struct {
	OnHand    int `json:"on_hand"`
	Reserved  int `json:"reserved"`
	Available int `json:"available"`
}

// StockAlert is a persisted low/out/back-in-stock signal. At most one
// unresolved alert of a given type exists per SKU.
type StockAlert struct {
	ID                 int64      `db:"id" json:"id"`
	ProductID          int64      `db:"product_id" json:"product_id"`
	VariantID          int64      `db:"variant_id" json:"variant_id,omitempty"`
	AlertType          string     `db:"alert_type" json:"alert_type"`
	ThresholdAtTrigger int        `db:"threshold_at_trigger" json:"threshold_at_trigger"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	ResolvedAt         *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
}

// SKU returns the alert's stock-keeping unit.
func (a *StockAlert) SKU() SKU {
	return SKU{ProductID: a.ProductID, VariantID: a.VariantID}
}

// EventStats summarizes event store contents for the admin dashboard.
type EventStats struct {
	Total           int64   `db:"total" json:"total"`
	Processed       int64   `db:"processed" json:"processed"`
	Failed          int64   `db:"failed" json:"failed"`
	AvgProcessingMs float64 `db:"avg_processing_ms" json:"avg_processing_ms"`
}
