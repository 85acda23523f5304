package store

import (
	"context"
	"fmt"

	"commerce-service/internal/models"
)

// Folds over the movement log. Reserve/release pairs track the reservation
// balance and never touch on-hand; sale, restock and adjustment move on-hand.
const stockFold = `
	COALESCE(SUM(delta) FILTER (WHERE reason IN ('sale', 'restock', 'adjustment')), 0) AS on_hand,
	COALESCE(-SUM(delta) FILTER (WHERE reason IN ('reserve', 'release')), 0) AS reserved`

// LockSKU takes a transaction-scoped advisory lock on the SKU, serializing
// concurrent writers so the fold and the append observe the same state.
// Released automatically at commit or rollback.
func (t *TxStore) LockSKU(ctx context.Context, sku models.SKU) error {
	_, err := t.tx.ExecContext(ctx,
		"SELECT pg_advisory_xact_lock(hashtextextended($1, 0))",
		fmt.Sprintf("sku:%d:%d", sku.ProductID, sku.VariantID))
	return err
}

// StockLevel folds the SKU's movements inside the current transaction.
func (t *TxStore) StockLevel(ctx context.Context, sku models.SKU) (models.StockLevel, error) {
	var level models.StockLevel
	err := t.tx.GetContext(ctx, &level,
		"SELECT"+stockFold+`
		FROM inventory_movements
		WHERE product_id = $1 AND COALESCE(variant_id, 0) = $2`,
		sku.ProductID, sku.VariantID)
	if err != nil {
		return models.StockLevel{}, fmt.Errorf("failed to fold movements: %w", err)
	}
	level.Available = level.OnHand - level.Reserved
	return level, nil
}

// OrderReserved returns the outstanding reserved quantity one order holds on
// a SKU: its reserve movements not yet offset by a release.
func (t *TxStore) OrderReserved(ctx context.Context, sku models.SKU, orderID int64) (int, error) {
	var reserved int
	err := t.tx.GetContext(ctx, &reserved, `
		SELECT COALESCE(-SUM(delta) FILTER (WHERE reason IN ('reserve', 'release')), 0)
		FROM inventory_movements
		WHERE product_id = $1 AND COALESCE(variant_id, 0) = $2 AND related_order_id = $3`,
		sku.ProductID, sku.VariantID, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to fold order reservation: %w", err)
	}
	return reserved, nil
}

// InsertMovement appends one ledger row. There is no update or delete path
// for inventory_movements anywhere in this package.
func (t *TxStore) InsertMovement(ctx context.Context, mv *models.InventoryMovement) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO inventory_movements (product_id, variant_id, delta, reason, related_order_id)
		VALUES ($1, NULLIF($2, 0), $3, $4, NULLIF($5, 0))
		RETURNING id, created_at`,
		mv.ProductID, mv.VariantID, mv.Delta, mv.Reason, mv.RelatedOrderID).
		Scan(&mv.ID, &mv.CreatedAt)
}

// CurrentStock folds a SKU read-only, outside any dispatcher transaction.
// Serves the storefront and admin read APIs only; writers always re-fold
// under LockSKU inside their own transaction.
func (s *Store) CurrentStock(ctx context.Context, sku models.SKU) (models.StockLevel, error) {
	var level models.StockLevel
	err := s.db.GetContext(ctx, &level,
		"SELECT"+stockFold+`
		FROM inventory_movements
		WHERE product_id = $1 AND COALESCE(variant_id, 0) = $2`,
		sku.ProductID, sku.VariantID)
	if err != nil {
		return models.StockLevel{}, fmt.Errorf("failed to fold movements: %w", err)
	}
	level.Available = level.OnHand - level.Reserved
	return level, nil
}

// Movements returns a SKU's ledger history, newest first.
func (s *Store) Movements(ctx context.Context, sku models.SKU, limit int) ([]models.InventoryMovement, error) {
	var movements []models.InventoryMovement
	err := s.db.SelectContext(ctx, &movements, `
		SELECT id, product_id, COALESCE(variant_id, 0) AS variant_id, delta, reason,
			COALESCE(related_order_id, 0) AS related_order_id, created_at
		FROM inventory_movements
		WHERE product_id = $1 AND COALESCE(variant_id, 0) = $2
		ORDER BY created_at DESC, id DESC LIMIT $3`,
		sku.ProductID, sku.VariantID, limit)
	return movements, err
}
