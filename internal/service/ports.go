package service

import (
	"context"
	"time"

	"commerce-service/internal/models"
)

// Store opens the unit of work the dispatcher runs in. The production
// implementation lives in internal/store; tests substitute an in-memory one.
type Store interface {
	// InTx runs fn inside a single database transaction with the configured
	// bounded timeout. fn returning an error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the transactional surface the dispatcher, ledger and alert monitor
// share. Every read that feeds a transition or stock check happens through Tx
// so it observes the same snapshot the write will use.
type Tx interface {
	// ReserveEvent inserts the event row, or returns the prior row when the
	// provider already delivered this id. A concurrent delivery of the same id
	// blocks on the unique constraint until the first transaction resolves.
	ReserveEvent(ctx context.Context, ev *models.InboundEvent) (*models.InboundEvent, error)
	// FinishEvent flips processed exactly once. ErrEventNotFound and
	// ErrAlreadyProcessed are programming errors.
	FinishEvent(ctx context.Context, providerEventID string, success bool, elapsed time.Duration, errMsg string) error

	// BeginApply/RollbackApply bracket the side-effect portion of a dispatch
	// (a savepoint): a business-rule failure rolls the side effects back while
	// the event row and its failure outcome still commit.
	BeginApply(ctx context.Context) error
	RollbackApply(ctx context.Context) error

	OrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpdateOrderState(ctx context.Context, orderID int64, st State) error

	// LockSKU serializes concurrent writers of one SKU for the remainder of
	// the transaction.
	LockSKU(ctx context.Context, sku models.SKU) error
	StockLevel(ctx context.Context, sku models.SKU) (models.StockLevel, error)
	// OrderReserved returns the order's outstanding reserved quantity for sku.
	OrderReserved(ctx context.Context, sku models.SKU, orderID int64) (int, error)
	InsertMovement(ctx context.Context, mv *models.InventoryMovement) error

	UnresolvedAlert(ctx context.Context, sku models.SKU, alertType string) (*models.StockAlert, error)
	InsertAlert(ctx context.Context, alert *models.StockAlert) error
	ResolveAlert(ctx context.Context, alertID int64, at time.Time) error
}
