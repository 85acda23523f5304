package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"commerce-service/internal/models"
)

// memStore is an in-memory Store/Tx used by the dispatcher tests. InTx
// serializes callers and restores a snapshot on error, mirroring transaction
// rollback; BeginApply/RollbackApply snapshot again for savepoint semantics.
type memStore struct {
	mu    sync.Mutex
	state memState

	// failInsertMovement, when set, makes the next InsertMovement call fail.
	// Simulates an infrastructure error mid-transaction.
	failInsertMovement error
}

type memState struct {
	nextID    int64
	events    map[string]*models.InboundEvent
	orders    map[int64]*models.Order
	items     map[int64][]models.OrderItem
	movements []models.InventoryMovement
	alerts    []models.StockAlert
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			nextID: 1,
			events: make(map[string]*models.InboundEvent),
			orders: make(map[int64]*models.Order),
			items:  make(map[int64][]models.OrderItem),
		},
	}
}

func (s *memState) clone() memState {
	c := memState{
		nextID: s.nextID,
		events: make(map[string]*models.InboundEvent, len(s.events)),
		orders: make(map[int64]*models.Order, len(s.orders)),
		items:  make(map[int64][]models.OrderItem, len(s.items)),
	}
	for k, v := range s.events {
		ev := *v
		c.events[k] = &ev
	}
	for k, v := range s.orders {
		o := *v
		c.orders[k] = &o
	}
	for k, v := range s.items {
		c.items[k] = append([]models.OrderItem(nil), v...)
	}
	c.movements = append([]models.InventoryMovement(nil), s.movements...)
	c.alerts = append([]models.StockAlert(nil), s.alerts...)
	return c
}

func (s *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// seedOrder registers an order with items and returns it.
func (s *memStore) seedOrder(number, status, payment, fulfillment string, items ...models.OrderItem) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.nextID
	s.state.nextID++
	order := &models.Order{
		ID:                id,
		OrderNumber:       number,
		Status:            status,
		PaymentStatus:     payment,
		FulfillmentStatus: fulfillment,
	}
	s.state.orders[id] = order
	for i := range items {
		items[i].OrderID = id
	}
	s.state.items[id] = items
	return order
}

// seedStock appends a restock movement so the SKU starts with qty on hand.
func (s *memStore) seedStock(sku models.SKU, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.state.nextID
	s.state.nextID++
	s.state.movements = append(s.state.movements, models.InventoryMovement{
		ID:        id,
		ProductID: sku.ProductID,
		VariantID: sku.VariantID,
		Delta:     qty,
		Reason:    models.MovementRestock,
		CreatedAt: time.Now(),
	})
}

func (s *memStore) order(number string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.state.orders {
		if o.OrderNumber == number {
			c := *o
			return &c
		}
	}
	return nil
}

func (s *memStore) event(providerEventID string) *models.InboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev, ok := s.state.events[providerEventID]; ok {
		c := *ev
		return &c
	}
	return nil
}

func (s *memStore) movementCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.movements)
}

func (s *memStore) stock(sku models.SKU) models.StockLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return foldStock(s.state.movements, sku)
}

func (s *memStore) openAlerts(sku models.SKU) []models.StockAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []models.StockAlert
	for _, a := range s.state.alerts {
		if a.ProductID == sku.ProductID && a.VariantID == sku.VariantID && a.ResolvedAt == nil {
			open = append(open, a)
		}
	}
	return open
}

func (s *memStore) alertsOfType(sku models.SKU, alertType string) []models.StockAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StockAlert
	for _, a := range s.state.alerts {
		if a.ProductID == sku.ProductID && a.VariantID == sku.VariantID && a.AlertType == alertType {
			out = append(out, a)
		}
	}
	return out
}

func foldStock(movements []models.InventoryMovement, sku models.SKU) models.StockLevel {
	var level models.StockLevel
	for _, mv := range movements {
		if mv.ProductID != sku.ProductID || mv.VariantID != sku.VariantID {
			continue
		}
		switch mv.Reason {
		case models.MovementSale, models.MovementRestock, models.MovementAdjustment:
			level.OnHand += mv.Delta
		case models.MovementReserve, models.MovementRelease:
			level.Reserved -= mv.Delta
		}
	}
	level.Available = level.OnHand - level.Reserved
	return level
}

// memTx operates directly on the store state; memStore.InTx holds the lock
// for the whole transaction.
type memTx struct {
	store     *memStore
	applySnap *memState
}

func (t *memTx) ReserveEvent(ctx context.Context, ev *models.InboundEvent) (*models.InboundEvent, error) {
	st := &t.store.state
	if prior, ok := st.events[ev.ProviderEventID]; ok {
		c := *prior
		return &c, nil
	}
	ev.ID = st.nextID
	st.nextID++
	ev.ReceivedAt = time.Now()
	stored := *ev
	st.events[ev.ProviderEventID] = &stored
	return nil, nil
}

func (t *memTx) FinishEvent(ctx context.Context, providerEventID string, success bool, elapsed time.Duration, errMsg string) error {
	ev, ok := t.store.state.events[providerEventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, providerEventID)
	}
	if ev.Processed {
		return fmt.Errorf("%w: %s", ErrAlreadyProcessed, providerEventID)
	}
	ev.Processed = true
	ev.Success = success
	ev.ProcessingTimeMs = elapsed.Milliseconds()
	ev.ErrorMessage = errMsg
	return nil
}

func (t *memTx) BeginApply(ctx context.Context) error {
	snap := t.store.state.clone()
	t.applySnap = &snap
	return nil
}

func (t *memTx) RollbackApply(ctx context.Context) error {
	if t.applySnap == nil {
		return fmt.Errorf("no apply savepoint")
	}
	t.store.state = *t.applySnap
	t.applySnap = nil
	return nil
}

func (t *memTx) OrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	for _, o := range t.store.state.orders {
		if o.OrderNumber == orderNumber {
			c := *o
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
}

func (t *memTx) OrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return append([]models.OrderItem(nil), t.store.state.items[orderID]...), nil
}

func (t *memTx) UpdateOrderState(ctx context.Context, orderID int64, st State) error {
	o, ok := t.store.state.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: id=%d", ErrOrderNotFound, orderID)
	}
	o.Status = st.Status
	o.PaymentStatus = st.Payment
	o.FulfillmentStatus = st.Fulfillment
	o.UpdatedAt = time.Now()
	return nil
}

func (t *memTx) LockSKU(ctx context.Context, sku models.SKU) error {
	// InTx already serializes everything
	return nil
}

func (t *memTx) StockLevel(ctx context.Context, sku models.SKU) (models.StockLevel, error) {
	return foldStock(t.store.state.movements, sku), nil
}

func (t *memTx) OrderReserved(ctx context.Context, sku models.SKU, orderID int64) (int, error) {
	reserved := 0
	for _, mv := range t.store.state.movements {
		if mv.ProductID != sku.ProductID || mv.VariantID != sku.VariantID || mv.RelatedOrderID != orderID {
			continue
		}
		if mv.Reason == models.MovementReserve || mv.Reason == models.MovementRelease {
			reserved -= mv.Delta
		}
	}
	return reserved, nil
}

func (t *memTx) InsertMovement(ctx context.Context, mv *models.InventoryMovement) error {
	if err := t.store.failInsertMovement; err != nil {
		t.store.failInsertMovement = nil
		return err
	}
	st := &t.store.state
	mv.ID = st.nextID
	st.nextID++
	mv.CreatedAt = time.Now()
	st.movements = append(st.movements, *mv)
	return nil
}

func (t *memTx) UnresolvedAlert(ctx context.Context, sku models.SKU, alertType string) (*models.StockAlert, error) {
	for i := range t.store.state.alerts {
		a := &t.store.state.alerts[i]
		if a.ProductID == sku.ProductID && a.VariantID == sku.VariantID &&
			a.AlertType == alertType && a.ResolvedAt == nil {
			c := *a
			return &c, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertAlert(ctx context.Context, alert *models.StockAlert) error {
	st := &t.store.state
	alert.ID = st.nextID
	st.nextID++
	alert.CreatedAt = time.Now()
	st.alerts = append(st.alerts, *alert)
	return nil
}

func (t *memTx) ResolveAlert(ctx context.Context, alertID int64, at time.Time) error {
	for i := range t.store.state.alerts {
		a := &t.store.state.alerts[i]
		if a.ID == alertID && a.ResolvedAt == nil {
			resolved := at
			a.ResolvedAt = &resolved
			return nil
		}
	}
	return fmt.Errorf("alert %d not found or already resolved", alertID)
}
