package store

import (
	"context"
	"database/sql"
	"time"

	"commerce-service/internal/models"
)

const alertColumns = `id, product_id, COALESCE(variant_id, 0) AS variant_id, alert_type,
	threshold_at_trigger, created_at, resolved_at`

// UnresolvedAlert returns the open alert of alertType for a SKU, or nil.
// The partial unique index on (product_id, variant_id, alert_type) WHERE
// resolved_at IS NULL keeps this at most one row.
func (t *TxStore) UnresolvedAlert(ctx context.Context, sku models.SKU, alertType string) (*models.StockAlert, error) {
	var alert models.StockAlert
	err := t.tx.GetContext(ctx, &alert,
		"SELECT "+alertColumns+` FROM stock_alerts
		WHERE product_id = $1 AND COALESCE(variant_id, 0) = $2 AND alert_type = $3 AND resolved_at IS NULL`,
		sku.ProductID, sku.VariantID, alertType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// InsertAlert creates an alert row inside the dispatcher transaction.
func (t *TxStore) InsertAlert(ctx context.Context, alert *models.StockAlert) error {
	return t.tx.QueryRowxContext(ctx, `
		INSERT INTO stock_alerts (product_id, variant_id, alert_type, threshold_at_trigger, resolved_at)
		VALUES ($1, NULLIF($2, 0), $3, $4, $5)
		RETURNING id, created_at`,
		alert.ProductID, alert.VariantID, alert.AlertType, alert.ThresholdAtTrigger, alert.ResolvedAt).
		Scan(&alert.ID, &alert.CreatedAt)
}

// ResolveAlert closes an open alert.
func (t *TxStore) ResolveAlert(ctx context.Context, alertID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE stock_alerts SET resolved_at = $2 WHERE id = $1 AND resolved_at IS NULL",
		alertID, at)
	return err
}

// OpenAlerts lists every unresolved alert, read-only, for the admin UI.
func (s *Store) OpenAlerts(ctx context.Context) ([]models.StockAlert, error) {
	var alerts []models.StockAlert
	err := s.db.SelectContext(ctx, &alerts,
		"SELECT "+alertColumns+` FROM stock_alerts
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC`)
	return alerts, err
}
