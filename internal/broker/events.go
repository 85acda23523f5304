package broker

import (
	"context"
	"fmt"

	"commerce-service/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderStatusChanged publishes an OrderStatusChanged event. Messages
// are keyed by order so consumers see transitions for one order in order.
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	key := fmt.Sprintf("order-%d", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockAlert publishes a StockAlertRaised event, keyed by SKU.
func (ep *EventPublisher) PublishStockAlert(ctx context.Context, event *models.StockAlertRaisedEvent) error {
	key := fmt.Sprintf("sku-%d-%d", event.ProductID, event.VariantID)
	return ep.producer.PublishEvent(ctx, key, event)
}
