package service

import (
	"context"
	"testing"

	"commerce-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inLedgerTx(t *testing.T, ms *memStore, fn func(ctx context.Context, tx Tx) error) error {
	t.Helper()
	return ms.InTx(context.Background(), fn)
}

func TestAppendMovementRejectsWrongSign(t *testing.T) {
	ms := newMemStore()
	ledger := NewInventoryLedger()

	bad := []*models.InventoryMovement{
		{ProductID: 1, Delta: 3, Reason: models.MovementReserve},
		{ProductID: 1, Delta: 2, Reason: models.MovementSale},
		{ProductID: 1, Delta: -1, Reason: models.MovementRelease},
		{ProductID: 1, Delta: -4, Reason: models.MovementRestock},
		{ProductID: 1, Delta: 0, Reason: models.MovementAdjustment},
		{ProductID: 1, Delta: 1, Reason: "shrinkage"},
	}
	for _, mv := range bad {
		err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
			return ledger.AppendMovement(ctx, tx, mv)
		})
		assert.Error(t, err, "reason=%s delta=%d", mv.Reason, mv.Delta)
	}
	assert.Zero(t, ms.movementCount())
}

func TestAppendMovementEnforcesStock(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 1}
	ms.seedStock(sku, 2)
	ledger := NewInventoryLedger()

	err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: 1, Delta: -3, Reason: models.MovementReserve, RelatedOrderID: 7,
		})
	})
	assert.ErrorIs(t, err, ErrInsufficientStock)

	err = inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: 1, Delta: -2, Reason: models.MovementReserve, RelatedOrderID: 7,
		})
	})
	require.NoError(t, err)

	level := ms.stock(sku)
	assert.Equal(t, 2, level.OnHand)
	assert.Equal(t, 0, level.Available)
}

func TestAdjustmentMayGoNegative(t *testing.T) {
	// a signed correction can take on-hand below the reserved balance; the
	// guard only applies to new reservations
	ms := newMemStore()
	sku := models.SKU{ProductID: 1}
	ms.seedStock(sku, 5)
	ledger := NewInventoryLedger()

	err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: 1, Delta: -8, Reason: models.MovementAdjustment,
		})
	})
	require.NoError(t, err)
	assert.Equal(t, -3, ms.stock(sku).OnHand)
}

func TestReleaseOutstandingIsIdempotentPerOrder(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 1}
	ms.seedStock(sku, 10)
	ledger := NewInventoryLedger()

	err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: 1, Delta: -4, Reason: models.MovementReserve, RelatedOrderID: 7,
		})
	})
	require.NoError(t, err)

	var released int
	err = inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		var err error
		released, err = ledger.ReleaseOutstanding(ctx, tx, sku, 7)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 4, released)

	err = inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		var err error
		released, err = ledger.ReleaseOutstanding(ctx, tx, sku, 7)
		return err
	})
	require.NoError(t, err)
	assert.Zero(t, released)

	level := ms.stock(sku)
	assert.Equal(t, 0, level.Reserved)
	assert.Equal(t, 10, level.Available)
}

func TestReleaseOutstandingIgnoresOtherOrders(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 1}
	ms.seedStock(sku, 10)
	ledger := NewInventoryLedger()

	for _, orderID := range []int64{7, 8} {
		err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
			return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
				ProductID: 1, Delta: -2, Reason: models.MovementReserve, RelatedOrderID: orderID,
			})
		})
		require.NoError(t, err)
	}

	err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		_, err := ledger.ReleaseOutstanding(ctx, tx, sku, 7)
		return err
	})
	require.NoError(t, err)

	// order 8's reservation stands
	assert.Equal(t, 2, ms.stock(sku).Reserved)
}

func TestConvertToSaleClosesReservation(t *testing.T) {
	ms := newMemStore()
	sku := models.SKU{ProductID: 1}
	ms.seedStock(sku, 10)
	ledger := NewInventoryLedger()

	err := inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.AppendMovement(ctx, tx, &models.InventoryMovement{
			ProductID: 1, Delta: -4, Reason: models.MovementReserve, RelatedOrderID: 7,
		})
	})
	require.NoError(t, err)

	err = inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.ConvertToSale(ctx, tx, sku, 7)
	})
	require.NoError(t, err)

	level := ms.stock(sku)
	assert.Equal(t, 6, level.OnHand)
	assert.Equal(t, 0, level.Reserved)
	assert.Equal(t, 6, level.Available)

	// converting again finds nothing outstanding and appends nothing
	before := ms.movementCount()
	err = inLedgerTx(t, ms, func(ctx context.Context, tx Tx) error {
		return ledger.ConvertToSale(ctx, tx, sku, 7)
	})
	require.NoError(t, err)
	assert.Equal(t, before, ms.movementCount())
}
