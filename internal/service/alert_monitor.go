package service

import (
	"context"
	"fmt"
	"time"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// StockAlertMonitor derives low/out-of-stock alerts from ledger folds. It is
// invoked after every movement, inside the same unit of work that produced it.
type StockAlertMonitor struct {
	threshold int
	logger    *zap.Logger
}

// NewStockAlertMonitor creates a monitor with the configured low-stock
// threshold.
func NewStockAlertMonitor(lowStockThreshold int) *StockAlertMonitor {
	return &StockAlertMonitor{threshold: lowStockThreshold, logger: util.GetLogger()}
}

// Evaluate recomputes sku's level and reconciles alerts against it. Returned
// alerts are the ones newly created, for post-commit publication.
//
// available <= 0 raises out_of_stock and supersedes any open low_stock alert;
// available at or under the threshold raises low_stock; recovery above the
// threshold resolves whatever is open and records a back_in_stock row, which
// is persisted already resolved since it marks an edge, not a lasting state.
func (m *StockAlertMonitor) Evaluate(ctx context.Context, tx Tx, sku models.SKU) ([]models.StockAlert, error) {
	level, err := tx.StockLevel(ctx, sku)
	if err != nil {
		return nil, fmt.Errorf("failed to read stock level: %w", err)
	}

	lowOpen, err := tx.UnresolvedAlert(ctx, sku, models.AlertLowStock)
	if err != nil {
		return nil, err
	}
	outOpen, err := tx.UnresolvedAlert(ctx, sku, models.AlertOutOfStock)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var raised []models.StockAlert

	switch {
	case level.Available <= 0:
		if lowOpen != nil {
			if err := tx.ResolveAlert(ctx, lowOpen.ID, now); err != nil {
				return nil, err
			}
		}
		if outOpen == nil {
			alert, err := m.create(ctx, tx, sku, models.AlertOutOfStock, nil)
			if err != nil {
				return nil, err
			}
			raised = append(raised, *alert)
		}

	case level.Available <= m.threshold:
		if outOpen != nil {
			if err := tx.ResolveAlert(ctx, outOpen.ID, now); err != nil {
				return nil, err
			}
		}
		if lowOpen == nil {
			alert, err := m.create(ctx, tx, sku, models.AlertLowStock, nil)
			if err != nil {
				return nil, err
			}
			raised = append(raised, *alert)
		}

	default:
		recovered := false
		if lowOpen != nil {
			if err := tx.ResolveAlert(ctx, lowOpen.ID, now); err != nil {
				return nil, err
			}
			recovered = true
		}
		if outOpen != nil {
			if err := tx.ResolveAlert(ctx, outOpen.ID, now); err != nil {
				return nil, err
			}
			recovered = true
		}
		if recovered {
			alert, err := m.create(ctx, tx, sku, models.AlertBackInStock, &now)
			if err != nil {
				return nil, err
			}
			raised = append(raised, *alert)
		}
	}

	for i := range raised {
		m.logger.Info("Stock alert raised",
			zap.Int64("product_id", sku.ProductID),
			zap.Int64("variant_id", sku.VariantID),
			zap.String("alert_type", raised[i].AlertType),
			zap.Int("available", level.Available))
	}
	return raised, nil
}

func (m *StockAlertMonitor) create(ctx context.Context, tx Tx, sku models.SKU, alertType string, resolvedAt *time.Time) (*models.StockAlert, error) {
	alert := &models.StockAlert{
		ProductID:          sku.ProductID,
		VariantID:          sku.VariantID,
		AlertType:          alertType,
		ThresholdAtTrigger: m.threshold,
		ResolvedAt:         resolvedAt,
	}
	if err := tx.InsertAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("failed to insert %s alert: %w", alertType, err)
	}
	util.StockAlertsCreatedTotal.WithLabelValues(alertType).Inc()
	return alert, nil
}
