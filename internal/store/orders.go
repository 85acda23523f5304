package store

import (
	"context"
	"database/sql"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/service"
)

const orderItemColumns = `id, order_id, product_id, COALESCE(variant_id, 0) AS variant_id,
	quantity, unit_amount, total_amount`

// OrderByNumber loads an order inside the dispatcher transaction.
func (t *TxStore) OrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", service.ErrOrderNotFound, orderNumber)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrderItems loads an order's lines inside the dispatcher transaction.
func (t *TxStore) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := t.tx.SelectContext(ctx, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// UpdateOrderState writes all three lifecycle columns together. This is the
// only write path for them; the state machine guarantees the combination is
// legal before it gets here.
func (t *TxStore) UpdateOrderState(ctx context.Context, orderID int64, st service.State) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, payment_status = $2, fulfillment_status = $3, updated_at = NOW()
		WHERE id = $4`,
		st.Status, st.Payment, st.Fulfillment, orderID)
	return err
}

// GetOrderByID retrieves an order with its items, read-only.
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, []models.OrderItem, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %d", service.ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orderItems(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

// GetOrderByNumber retrieves an order with its items by its human-readable
// number, read-only.
func (s *Store) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, []models.OrderItem, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_number = $1", orderNumber)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("%w: %s", service.ErrOrderNotFound, orderNumber)
	}
	if err != nil {
		return nil, nil, err
	}

	items, err := s.orderItems(ctx, order.ID)
	if err != nil {
		return nil, nil, err
	}
	return &order, items, nil
}

func (s *Store) orderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}
