package service

import (
	"context"
	"testing"

	"commerce-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evaluate runs the monitor in its own unit of work, the way the dispatcher
// does after a movement.
func evaluate(t *testing.T, ms *memStore, m *StockAlertMonitor, sku models.SKU) []models.StockAlert {
	t.Helper()
	var raised []models.StockAlert
	err := ms.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		var err error
		raised, err = m.Evaluate(ctx, tx, sku)
		return err
	})
	require.NoError(t, err)
	return raised
}

func reserve(t *testing.T, ms *memStore, sku models.SKU, qty int) {
	t.Helper()
	ledger := NewInventoryLedger()
	err := ms.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: sku.ProductID,
			VariantID: sku.VariantID,
			Delta:     -qty,
			Reason:    models.MovementReserve,
		})
	})
	require.NoError(t, err)
}

func TestLowStockAlertLifecycle(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 100}
	ms.seedStock(sku, 10)
	m := NewStockAlertMonitor(5)

	// available 10, nothing to report
	raised := evaluate(t, ms, m, sku)
	assert.Empty(t, raised)

	// drop to the threshold exactly
	reserve(t, ms, sku, 5)
	raised = evaluate(t, ms, m, sku)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertLowStock, raised[0].AlertType)
	assert.Equal(t, 5, raised[0].ThresholdAtTrigger)

	// still low: no duplicate while one is open
	reserve(t, ms, sku, 1)
	raised = evaluate(t, ms, m, sku)
	assert.Empty(t, raised)
	assert.Len(t, ms.openAlerts(sku), 1)

	// to zero: out_of_stock supersedes low_stock
	reserve(t, ms, sku, 4)
	raised = evaluate(t, ms, m, sku)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertOutOfStock, raised[0].AlertType)

	open := ms.openAlerts(sku)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertOutOfStock, open[0].AlertType)

	// recovery resolves everything and marks the edge
	ms.seedStock(sku, 20)
	raised = evaluate(t, ms, m, sku)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertBackInStock, raised[0].AlertType)
	assert.NotNil(t, raised[0].ResolvedAt)
	assert.Empty(t, ms.openAlerts(sku))
}

func TestOutOfStockDirectlyFromHealthy(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 100}
	ms.seedStock(sku, 10)
	m := NewStockAlertMonitor(5)

	reserve(t, ms, sku, 10)
	raised := evaluate(t, ms, m, sku)
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertOutOfStock, raised[0].AlertType)
	assert.Empty(t, ms.alertsOfType(sku, models.AlertLowStock))
}

func TestAlertsRaisedInsideDispatch(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 100}
	ms.seedStock(sku, 6)
	pendingOrder(ms, "ORD-1", models.OrderItem{ProductID: 100, Quantity: 3})

	d := newTestDispatcher(ms)
	res, err := d.Handle(context.Background(), "evt-1", models.EventOrderCreated, payment("ORD-1"))
	require.NoError(t, err)
	require.Equal(t, OutcomeAccepted, res.Outcome)

	// available dropped to 3, at or under the threshold of 5
	open := ms.openAlerts(sku)
	require.Len(t, open, 1)
	assert.Equal(t, models.AlertLowStock, open[0].AlertType)
}

func TestBackInStockOnlyAfterAnAlert(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 100}
	ms.seedStock(sku, 10)
	m := NewStockAlertMonitor(5)

	ms.seedStock(sku, 10)
	raised := evaluate(t, ms, m, sku)
	assert.Empty(t, raised)
	assert.Empty(t, ms.alertsOfType(sku, models.AlertBackInStock))
}
