package service

import (
	"context"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger owns the append-only movement log. Current stock is always
// a fold over movements computed inside the transaction that is about to
// write, never a mutated counter, so lost updates cannot happen.
type InventoryLedger struct {
	logger *zap.Logger
}

// NewInventoryLedger creates a new ledger.
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{logger: util.GetLogger()}
}

// CurrentStock locks sku and folds its movements.
func (l *InventoryLedger) CurrentStock(ctx context.Context, tx Tx, sku models.SKU) (models.StockLevel, error) {
	if err := tx.LockSKU(ctx, sku); err != nil {
		return models.StockLevel{}, fmt.Errorf("failed to lock sku: %w", err)
	}
	return tx.StockLevel(ctx, sku)
}

// AppendMovement validates the movement against the fold and appends it.
// A reserve that would push reserved past on_hand fails with
// ErrInsufficientStock; movements are never updated afterward.
func (l *InventoryLedger) AppendMovement(ctx context.Context, tx Tx, mv *models.InventoryMovement) error {
	if mv.Delta == 0 {
		return fmt.Errorf("movement delta must be non-zero")
	}
	if err := checkDeltaSign(mv); err != nil {
		return err
	}

	level, err := l.CurrentStock(ctx, tx, mv.SKU())
	if err != nil {
		return err
	}

	if mv.Reason == models.MovementReserve {
		wanted := level.Reserved - mv.Delta // reserve deltas are negative
		if wanted > level.OnHand {
			util.InventoryReservationsFailed.WithLabelValues("insufficient_stock").Inc()
			return fmt.Errorf("%w: product=%d variant=%d available=%d requested=%d",
				ErrInsufficientStock, mv.ProductID, mv.VariantID, level.Available, -mv.Delta)
		}
	}

	if err := tx.InsertMovement(ctx, mv); err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}

	util.MovementsAppendedTotal.WithLabelValues(mv.Reason).Inc()
	l.logger.Debug("Movement appended",
		zap.Int64("product_id", mv.ProductID),
		zap.Int64("variant_id", mv.VariantID),
		zap.Int("delta", mv.Delta),
		zap.String("reason", mv.Reason))
	return nil
}

// ReleaseOutstanding releases whatever reservation orderID still holds on
// sku. Releasing is idempotent per order: a second release for the same order
// is a no-op, and digital goods that never reserved release nothing.
func (l *InventoryLedger) ReleaseOutstanding(ctx context.Context, tx Tx, sku models.SKU, orderID int64) (int, error) {
	if err := tx.LockSKU(ctx, sku); err != nil {
		return 0, fmt.Errorf("failed to lock sku: %w", err)
	}
	outstanding, err := tx.OrderReserved(ctx, sku, orderID)
	if err != nil {
		return 0, err
	}
	if outstanding <= 0 {
		return 0, nil
	}
	mv := &models.InventoryMovement{
		ProductID:      sku.ProductID,
		VariantID:      sku.VariantID,
		Delta:          outstanding,
		Reason:         models.MovementRelease,
		RelatedOrderID: orderID,
	}
	if err := tx.InsertMovement(ctx, mv); err != nil {
		return 0, fmt.Errorf("failed to append release: %w", err)
	}
	util.MovementsAppendedTotal.WithLabelValues(models.MovementRelease).Inc()
	return outstanding, nil
}

// ConvertToSale turns the order's outstanding reservation on sku into a sale:
// a release movement closing the reservation and a sale movement reducing
// on-hand. Net change to available is the sold quantity leaving the shelf.
func (l *InventoryLedger) ConvertToSale(ctx context.Context, tx Tx, sku models.SKU, orderID int64) error {
	released, err := l.ReleaseOutstanding(ctx, tx, sku, orderID)
	if err != nil {
		return err
	}
	if released == 0 {
		return nil
	}
	sale := &models.InventoryMovement{
		ProductID:      sku.ProductID,
		VariantID:      sku.VariantID,
		Delta:          -released,
		Reason:         models.MovementSale,
		RelatedOrderID: orderID,
	}
	if err := tx.InsertMovement(ctx, sale); err != nil {
		return fmt.Errorf("failed to append sale: %w", err)
	}
	util.MovementsAppendedTotal.WithLabelValues(models.MovementSale).Inc()
	return nil
}

func checkDeltaSign(mv *models.InventoryMovement) error {
	switch mv.Reason {
	case models.MovementReserve, models.MovementSale:
		if mv.Delta > 0 {
			return fmt.Errorf("%s movement must carry a negative delta", mv.Reason)
		}
	case models.MovementRelease, models.MovementRestock:
		if mv.Delta < 0 {
			return fmt.Errorf("%s movement must carry a positive delta", mv.Reason)
		}
	case models.MovementAdjustment:
		// signed either way
	default:
		return fmt.Errorf("unknown movement reason: %s", mv.Reason)
	}
	return nil
}
