package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

// MemStore is an in-memory Store with the same compare-and-swap
// semantics as the Postgres store. It backs the test suite and local
// runs without a database.
type MemStore struct {
	mu           sync.Mutex
	orders       map[string]models.ServiceOrder
	stocks       map[string]models.PartStock
	consumptions map[string]models.PartConsumption
	settlements  map[string]models.CommissionSettlement // keyed by order id
	rates        map[string]decimal.Decimal
	history      []models.StatusEvent
}

var _ Store = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		orders:       make(map[string]models.ServiceOrder),
		stocks:       make(map[string]models.PartStock),
		consumptions: make(map[string]models.PartConsumption),
		settlements:  make(map[string]models.CommissionSettlement),
		rates:        make(map[string]decimal.Decimal),
	}
}

// SeedPartStock installs a stock row, replacing any existing one.
func (m *MemStore) SeedPartStock(partID string, onHand, reorderThreshold int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[partID] = models.PartStock{
		PartID:           partID,
		QuantityOnHand:   onHand,
		ReorderThreshold: reorderThreshold,
		UpdatedAt:        time.Now().UTC(),
	}
}

// SeedTechnicianRate installs a technician commission rate.
func (m *MemStore) SeedTechnicianRate(technicianID string, rate decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[technicianID] = rate
}

func (m *MemStore) CreateOrder(_ context.Context, order *models.ServiceOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemStore) ReadOrder(_ context.Context, id string) (*models.ServiceOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	out := cloneOrder(&order)
	return &out, nil
}

func (m *MemStore) WriteOrderIf(_ context.Context, order *models.ServiceOrder, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeOrderLocked(order, expectedVersion)
}

func (m *MemStore) CompleteOrderIf(_ context.Context, order *models.ServiceOrder, expectedVersion int64, settlement *models.CommissionSettlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.settlements[settlement.OrderID]; ok {
		return fmt.Errorf("settlement for order %s already exists: %w",
			settlement.OrderID, apperr.ErrConcurrentModification)
	}
	if err := m.writeOrderLocked(order, expectedVersion); err != nil {
		return err
	}
	m.settlements[settlement.OrderID] = *settlement
	return nil
}

func (m *MemStore) writeOrderLocked(order *models.ServiceOrder, expectedVersion int64) error {
	current, ok := m.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %s: %w", order.ID, apperr.ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("order %s: %w", order.ID, apperr.ErrConcurrentModification)
	}

	order.Version = expectedVersion + 1
	order.UpdatedAt = time.Now().UTC()
	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemStore) ReadPartStock(_ context.Context, partID string) (*models.PartStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock, ok := m.stocks[partID]
	if !ok {
		return nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	return &stock, nil
}

func (m *MemStore) ListPartStocks(_ context.Context) ([]models.PartStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.PartStock, 0, len(m.stocks))
	for _, stock := range m.stocks {
		out = append(out, stock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PartID < out[j].PartID })
	return out, nil
}

func (m *MemStore) Consume(_ context.Context, partID string, quantity int, orderID string) (*models.PartConsumption, *models.PartStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock, ok := m.stocks[partID]
	if !ok {
		return nil, nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	if stock.QuantityOnHand < quantity {
		return nil, nil, fmt.Errorf("part %s: on hand %d, requested %d: %w",
			partID, stock.QuantityOnHand, quantity, apperr.ErrInsufficientStock)
	}

	stock.QuantityOnHand -= quantity
	stock.UpdatedAt = time.Now().UTC()
	m.stocks[partID] = stock

	consumption := models.PartConsumption{
		ID:         uuid.New().String(),
		OrderID:    orderID,
		PartID:     partID,
		Quantity:   quantity,
		ConsumedAt: time.Now().UTC(),
	}
	m.consumptions[consumption.ID] = consumption
	return &consumption, &stock, nil
}

func (m *MemStore) ReverseConsumption(_ context.Context, consumptionID string) (*models.PartConsumption, *models.PartStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	consumption, ok := m.consumptions[consumptionID]
	if !ok {
		return nil, nil, fmt.Errorf("consumption %s: %w", consumptionID, apperr.ErrNotFound)
	}
	if consumption.Reversed {
		return nil, nil, fmt.Errorf("consumption %s: %w", consumptionID, apperr.ErrAlreadyReversed)
	}

	now := time.Now().UTC()
	consumption.Reversed = true
	consumption.ReversedAt = &now
	m.consumptions[consumptionID] = consumption

	stock := m.stocks[consumption.PartID]
	stock.QuantityOnHand += consumption.Quantity
	stock.UpdatedAt = now
	m.stocks[consumption.PartID] = stock

	return &consumption, &stock, nil
}

func (m *MemStore) Replenish(_ context.Context, partID string, quantity int) (*models.PartStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stock, ok := m.stocks[partID]
	if !ok {
		return nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	stock.QuantityOnHand += quantity
	stock.UpdatedAt = time.Now().UTC()
	m.stocks[partID] = stock
	return &stock, nil
}

func (m *MemStore) ReadConsumption(_ context.Context, id string) (*models.PartConsumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	consumption, ok := m.consumptions[id]
	if !ok {
		return nil, fmt.Errorf("consumption %s: %w", id, apperr.ErrNotFound)
	}
	return &consumption, nil
}

func (m *MemStore) ListConsumptions(_ context.Context, orderID string) ([]models.PartConsumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.PartConsumption
	for _, c := range m.consumptions {
		if c.OrderID == orderID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MemStore) ReadSettlement(_ context.Context, orderID string) (*models.CommissionSettlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settlement, ok := m.settlements[orderID]
	if !ok {
		return nil, fmt.Errorf("settlement for order %s: %w", orderID, apperr.ErrNotFound)
	}
	return &settlement, nil
}

func (m *MemStore) ReadTechnicianRate(_ context.Context, technicianID string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rate, ok := m.rates[technicianID]
	if !ok {
		return decimal.Zero, fmt.Errorf("technician %s: %w", technicianID, apperr.ErrNotFound)
	}
	return rate, nil
}

func (m *MemStore) AppendStatusEvent(_ context.Context, ev *models.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev.ID = int64(len(m.history) + 1)
	m.history = append(m.history, *ev)
	return nil
}

func (m *MemStore) ListStatusHistory(_ context.Context, orderID string) ([]models.StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.StatusEvent
	for _, ev := range m.history {
		if ev.OrderID == orderID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func cloneOrder(o *models.ServiceOrder) models.ServiceOrder {
	out := *o
	if o.TechnicianID != nil {
		id := *o.TechnicianID
		out.TechnicianID = &id
	}
	if o.FinalCost != nil {
		cost := *o.FinalCost
		out.FinalCost = &cost
	}
	return out
}
