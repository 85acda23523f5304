package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"commerce-service/internal/broker"
	"commerce-service/internal/models"
	"commerce-service/internal/redisclient"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the dispatcher's verdict on one delivery.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Result is returned to the webhook layer. Accepted and Duplicate are both
// acknowledged to the provider with 2xx; Rejected is acknowledged too, with
// the reason logged for the operator queue, so the provider stops retrying
// events that can never succeed.
type Result struct {
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

// EventDispatcher turns untrusted, possibly duplicated, possibly out-of-order
// provider notifications into order transitions and ledger movements, inside
// one transaction per event. There is no internal retry loop: transient
// failures roll back completely and recovery rides the provider's own
// at-least-once redelivery through the idempotency guard.
type EventDispatcher struct {
	store     Store
	ledger    *InventoryLedger
	monitor   *StockAlertMonitor
	publisher *broker.EventPublisher // optional
	cache     *redisclient.Client    // optional
	logger    *zap.Logger
}

// NewEventDispatcher creates a new dispatcher. publisher and cache may be nil
// (tests, degraded mode).
func NewEventDispatcher(
	store Store,
	ledger *InventoryLedger,
	monitor *StockAlertMonitor,
	publisher *broker.EventPublisher,
	cache *redisclient.Client,
) *EventDispatcher {
	return &EventDispatcher{
		store:     store,
		ledger:    ledger,
		monitor:   monitor,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
	}
}

// dispatchState carries what a committed dispatch needs to publish afterward.
type dispatchState struct {
	order  *models.Order
	from   State
	next   State
	skus   []models.SKU
	alerts []models.StockAlert
}

// Handle applies one provider event. The returned error means a transient
// failure: nothing was persisted and the provider should redeliver.
func (d *EventDispatcher) Handle(ctx context.Context, providerEventID, eventType string, rawPayload json.RawMessage) (Result, error) {
	ctx, span := util.StartSpan(ctx, "EventDispatcher.Handle")
	defer span.End()

	start := time.Now()
	defer func() {
		util.EventDispatchLatency.Observe(time.Since(start).Seconds())
	}()

	payload, parseErr := models.ParsePayload(eventType, rawPayload)

	var res Result
	var state dispatchState
	err := d.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		prior, err := tx.ReserveEvent(ctx, &models.InboundEvent{
			ProviderEventID: providerEventID,
			EventType:       eventType,
			Payload:         rawPayload,
		})
		if err != nil {
			return err
		}
		if prior != nil {
			reason := "already_seen"
			if !prior.Processed {
				// another worker is mid-flight; acknowledge, never reprocess
				reason = "in_progress"
			}
			res = Result{Outcome: OutcomeDuplicate, Reason: reason}
			return nil
		}

		applyErr := parseErr
		if applyErr == nil {
			if err := tx.BeginApply(ctx); err != nil {
				return err
			}
			applyErr = d.apply(ctx, tx, eventType, payload, &state)
			if applyErr != nil && IsPermanent(applyErr) {
				// keep the event row and its failure outcome, drop the side effects
				if err := tx.RollbackApply(ctx); err != nil {
					return err
				}
			}
		}

		if applyErr != nil {
			if !IsPermanent(applyErr) {
				return applyErr
			}
			if err := d.finish(ctx, tx, providerEventID, false, time.Since(start), applyErr.Error()); err != nil {
				return err
			}
			state = dispatchState{}
			res = Result{Outcome: OutcomeRejected, Reason: applyErr.Error()}
			return nil
		}

		if err := d.finish(ctx, tx, providerEventID, true, time.Since(start), ""); err != nil {
			return err
		}
		res = Result{Outcome: OutcomeAccepted}
		return nil
	})
	if err != nil {
		util.EventsReceivedTotal.WithLabelValues("transient_error").Inc()
		d.logger.Warn("Dispatch rolled back, awaiting provider redelivery",
			zap.String("provider_event_id", providerEventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return Result{}, err
	}

	util.EventsReceivedTotal.WithLabelValues(string(res.Outcome)).Inc()
	switch res.Outcome {
	case OutcomeRejected:
		util.EventsRejectedTotal.WithLabelValues(eventType).Inc()
		d.logger.Error("Event rejected, recorded for operator review",
			zap.String("provider_event_id", providerEventID),
			zap.String("event_type", eventType),
			zap.String("reason", res.Reason))
	case OutcomeAccepted:
		d.afterCommit(ctx, providerEventID, &state)
	}
	return res, nil
}

// ForceTransition is the audited admin escape hatch. It fabricates a
// manual_override event and pushes it through the normal dispatch path so the
// audit trail stays uniform.
func (d *EventDispatcher) ForceTransition(ctx context.Context, ov *models.OverridePayload) (Result, error) {
	raw, err := json.Marshal(ov)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal override payload: %w", err)
	}
	eventID := "manual-" + uuid.New().String()
	d.logger.Warn("Manual override requested",
		zap.String("order_number", ov.OrderNumber),
		zap.String("target_status", ov.TargetStatus),
		zap.String("actor", ov.Actor),
		zap.String("reason", ov.Reason))
	return d.Handle(ctx, eventID, models.EventManualOverride, raw)
}

// apply runs steps 3-5: order lookup, state transition, ledger effect, alert
// evaluation. Everything it touches sits behind the savepoint.
func (d *EventDispatcher) apply(ctx context.Context, tx Tx, eventType string, payload models.Payload, state *dispatchState) error {
	if payload.OrderRef() == "" {
		// subscription lifecycle: recorded for audit, no order transition
		return nil
	}

	order, err := tx.OrderByNumber(ctx, payload.OrderRef())
	if err != nil {
		return err
	}
	cur := StateOf(order)

	var next State
	var effect LedgerEffect
	if ov, ok := payload.(*models.OverridePayload); ok {
		next, effect = overrideTransition(cur, ov)
	} else {
		next, effect, err = Next(cur, eventType)
		if err != nil {
			return err
		}
	}

	restock := restockRequested(payload)
	if effect == EffectRestock && restock {
		next.Fulfillment = models.FulfillmentReturned
	}

	if err := tx.UpdateOrderState(ctx, order.ID, next); err != nil {
		return fmt.Errorf("failed to update order state: %w", err)
	}

	items, err := tx.OrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}

	touched, err := d.applyEffect(ctx, tx, effect, restock, order, items)
	if err != nil {
		return err
	}

	for _, sku := range touched {
		alerts, err := d.monitor.Evaluate(ctx, tx, sku)
		if err != nil {
			return err
		}
		state.alerts = append(state.alerts, alerts...)
	}

	state.order = order
	state.from = cur
	state.next = next
	state.skus = touched
	return nil
}

func (d *EventDispatcher) applyEffect(ctx context.Context, tx Tx, effect LedgerEffect, restock bool, order *models.Order, items []models.OrderItem) ([]models.SKU, error) {
	if effect == EffectNone || (effect == EffectRestock && !restock) {
		return nil, nil
	}

	var touched []models.SKU
	seen := make(map[models.SKU]bool)
	mark := func(sku models.SKU) {
		if !seen[sku] {
			seen[sku] = true
			touched = append(touched, sku)
		}
	}

	for _, item := range items {
		sku := models.SKU{ProductID: item.ProductID, VariantID: item.VariantID}
		switch effect {
		case EffectReserve:
			mv := &models.InventoryMovement{
				ProductID:      item.ProductID,
				VariantID:      item.VariantID,
				Delta:          -item.Quantity,
				Reason:         models.MovementReserve,
				RelatedOrderID: order.ID,
			}
			if err := d.ledger.AppendMovement(ctx, tx, mv); err != nil {
				return nil, err
			}
			mark(sku)
		case EffectRelease:
			released, err := d.ledger.ReleaseOutstanding(ctx, tx, sku, order.ID)
			if err != nil {
				return nil, err
			}
			if released > 0 {
				mark(sku)
			}
		case EffectConvertSale:
			if err := d.ledger.ConvertToSale(ctx, tx, sku, order.ID); err != nil {
				return nil, err
			}
			mark(sku)
		case EffectRestock:
			mv := &models.InventoryMovement{
				ProductID:      item.ProductID,
				VariantID:      item.VariantID,
				Delta:          item.Quantity,
				Reason:         models.MovementRestock,
				RelatedOrderID: order.ID,
			}
			if err := d.ledger.AppendMovement(ctx, tx, mv); err != nil {
				return nil, err
			}
			mark(sku)
		}
	}
	return touched, nil
}

// finish marks the event processed. A failure here is a programming error in
// the dispatcher's transaction boundaries and must be loud.
func (d *EventDispatcher) finish(ctx context.Context, tx Tx, providerEventID string, success bool, elapsed time.Duration, errMsg string) error {
	if err := tx.FinishEvent(ctx, providerEventID, success, elapsed, errMsg); err != nil {
		d.logger.Error("BUG: failed to mark event processed",
			zap.String("provider_event_id", providerEventID),
			zap.Error(err))
		return err
	}
	return nil
}

// afterCommit publishes what changed and drops stale cache entries. Failures
// here are logged and dropped: the transaction already committed and the
// outbound stream is best-effort.
func (d *EventDispatcher) afterCommit(ctx context.Context, providerEventID string, state *dispatchState) {
	if d.cache != nil {
		for _, sku := range state.skus {
			if err := d.cache.InvalidateStock(ctx, sku.ProductID, sku.VariantID); err != nil {
				d.logger.Warn("Failed to invalidate stock cache", zap.Error(err))
			}
		}
	}

	if d.publisher == nil || state.order == nil {
		return
	}

	if state.from.Status != state.next.Status {
		event := &models.OrderStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderStatusChanged,
				Timestamp: time.Now(),
			},
			OrderID:         state.order.ID,
			OrderNumber:     state.order.OrderNumber,
			FromStatus:      state.from.Status,
			ToStatus:        state.next.Status,
			PaymentStatus:   state.next.Payment,
			ProviderEventID: providerEventID,
		}
		if err := d.publisher.PublishOrderStatusChanged(ctx, event); err != nil {
			d.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
		}
	}

	for i := range state.alerts {
		alert := &state.alerts[i]
		event := &models.StockAlertRaisedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeStockAlertRaised,
				Timestamp: time.Now(),
			},
			ProductID: alert.ProductID,
			VariantID: alert.VariantID,
			AlertType: alert.AlertType,
			Threshold: alert.ThresholdAtTrigger,
		}
		if err := d.publisher.PublishStockAlert(ctx, event); err != nil {
			d.logger.Error("Failed to publish StockAlertRaised event", zap.Error(err))
		}
	}
}

// overrideTransition bypasses the transition table for incident recovery. The
// admin names the target status and whether stock comes back; payment and
// fulfillment projections are preserved.
func overrideTransition(cur State, ov *models.OverridePayload) (State, LedgerEffect) {
	next := State{Status: ov.TargetStatus, Payment: cur.Payment, Fulfillment: cur.Fulfillment}
	switch {
	case ov.ReleaseReservation:
		return next, EffectRelease
	case ov.Restock:
		return next, EffectRestock
	}
	return next, EffectNone
}

// restockRequested reads the goods-returned flag off payloads that carry one.
func restockRequested(payload models.Payload) bool {
	switch p := payload.(type) {
	case *models.RefundPayload:
		return p.Restock
	case *models.OverridePayload:
		return p.Restock
	}
	return false
}
