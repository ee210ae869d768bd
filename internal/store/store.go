package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

// Store is the durable-store contract the engine runs against. Writes
// that carry an expected version are compare-and-swap: they fail with
// apperr.ErrConcurrentModification instead of silently overwriting.
// Consume and CompleteOrderIf are single atomic units spanning two
// entities (stock+consumption, order+settlement respectively).
type Store interface {
	CreateOrder(ctx context.Context, order *models.ServiceOrder) error
	ReadOrder(ctx context.Context, id string) (*models.ServiceOrder, error)
	WriteOrderIf(ctx context.Context, order *models.ServiceOrder, expectedVersion int64) error
	CompleteOrderIf(ctx context.Context, order *models.ServiceOrder, expectedVersion int64, settlement *models.CommissionSettlement) error

	ReadPartStock(ctx context.Context, partID string) (*models.PartStock, error)
	ListPartStocks(ctx context.Context) ([]models.PartStock, error)
	Consume(ctx context.Context, partID string, quantity int, orderID string) (*models.PartConsumption, *models.PartStock, error)
	ReverseConsumption(ctx context.Context, consumptionID string) (*models.PartConsumption, *models.PartStock, error)
	Replenish(ctx context.Context, partID string, quantity int) (*models.PartStock, error)
	ReadConsumption(ctx context.Context, id string) (*models.PartConsumption, error)
	ListConsumptions(ctx context.Context, orderID string) ([]models.PartConsumption, error)

	ReadSettlement(ctx context.Context, orderID string) (*models.CommissionSettlement, error)
	ReadTechnicianRate(ctx context.Context, technicianID string) (decimal.Decimal, error)

	AppendStatusEvent(ctx context.Context, ev *models.StatusEvent) error
	ListStatusHistory(ctx context.Context, orderID string) ([]models.StatusEvent, error)
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewStore connects to Postgres and returns a SQLStore.
func NewStore(databaseURL string) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *SQLStore) GetDB() *sqlx.DB {
	return s.db
}

// ReadPartStock retrieves the stock row for a part
func (s *SQLStore) ReadPartStock(ctx context.Context, partID string) (*models.PartStock, error) {
	var stock models.PartStock
	err := s.db.GetContext(ctx, &stock, "SELECT * FROM part_stock WHERE part_id = $1", partID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// ListPartStocks retrieves all stock rows
func (s *SQLStore) ListPartStocks(ctx context.Context) ([]models.PartStock, error) {
	var stocks []models.PartStock
	err := s.db.SelectContext(ctx, &stocks, "SELECT * FROM part_stock ORDER BY part_id")
	return stocks, err
}

// Consume atomically checks on-hand quantity, decrements it and appends
// the consumption record. The row lock serializes concurrent consumers
// of the same part; two calls that would jointly exceed stock cannot
// both succeed.
func (s *SQLStore) Consume(ctx context.Context, partID string, quantity int, orderID string) (*models.PartConsumption, *models.PartStock, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var stock models.PartStock
	err = tx.GetContext(ctx, &stock,
		"SELECT * FROM part_stock WHERE part_id = $1 FOR UPDATE", partID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock stock: %w", err)
	}

	if stock.QuantityOnHand < quantity {
		return nil, nil, fmt.Errorf("part %s: on hand %d, requested %d: %w",
			partID, stock.QuantityOnHand, quantity, apperr.ErrInsufficientStock)
	}

	err = tx.GetContext(ctx, &stock, `
		UPDATE part_stock SET quantity_on_hand = quantity_on_hand - $1, updated_at = NOW()
		WHERE part_id = $2
		RETURNING *`, quantity, partID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrement stock: %w", err)
	}

	consumption := &models.PartConsumption{
		OrderID:  orderID,
		PartID:   partID,
		Quantity: quantity,
	}
	err = tx.GetContext(ctx, consumption, `
		INSERT INTO part_consumptions (order_id, part_id, quantity)
		VALUES ($1, $2, $3)
		RETURNING *`, orderID, partID, quantity)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to append consumption: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return consumption, &stock, nil
}

// ReverseConsumption re-increments stock and marks the consumption
// reversed in one transaction. The original record is kept.
func (s *SQLStore) ReverseConsumption(ctx context.Context, consumptionID string) (*models.PartConsumption, *models.PartStock, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var consumption models.PartConsumption
	err = tx.GetContext(ctx, &consumption,
		"SELECT * FROM part_consumptions WHERE id = $1 FOR UPDATE", consumptionID)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("consumption %s: %w", consumptionID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	if consumption.Reversed {
		return nil, nil, fmt.Errorf("consumption %s: %w", consumptionID, apperr.ErrAlreadyReversed)
	}

	err = tx.GetContext(ctx, &consumption, `
		UPDATE part_consumptions SET reversed = TRUE, reversed_at = NOW()
		WHERE id = $1
		RETURNING *`, consumptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mark consumption reversed: %w", err)
	}

	var stock models.PartStock
	err = tx.GetContext(ctx, &stock, `
		UPDATE part_stock SET quantity_on_hand = quantity_on_hand + $1, updated_at = NOW()
		WHERE part_id = $2
		RETURNING *`, consumption.Quantity, consumption.PartID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore stock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &consumption, &stock, nil
}

// Replenish increments on-hand stock
func (s *SQLStore) Replenish(ctx context.Context, partID string, quantity int) (*models.PartStock, error) {
	var stock models.PartStock
	err := s.db.GetContext(ctx, &stock, `
		UPDATE part_stock SET quantity_on_hand = quantity_on_hand + $1, updated_at = NOW()
		WHERE part_id = $2
		RETURNING *`, quantity, partID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("part %s: %w", partID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// ReadConsumption retrieves a consumption record by id
func (s *SQLStore) ReadConsumption(ctx context.Context, id string) (*models.PartConsumption, error) {
	var consumption models.PartConsumption
	err := s.db.GetContext(ctx, &consumption, "SELECT * FROM part_consumptions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("consumption %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &consumption, nil
}

// ListConsumptions retrieves all consumption records for an order
func (s *SQLStore) ListConsumptions(ctx context.Context, orderID string) ([]models.PartConsumption, error) {
	var consumptions []models.PartConsumption
	err := s.db.SelectContext(ctx, &consumptions,
		"SELECT * FROM part_consumptions WHERE order_id = $1 ORDER BY consumed_at", orderID)
	return consumptions, err
}

// ReadSettlement retrieves the settlement for an order
func (s *SQLStore) ReadSettlement(ctx context.Context, orderID string) (*models.CommissionSettlement, error) {
	var settlement models.CommissionSettlement
	err := s.db.GetContext(ctx, &settlement,
		"SELECT * FROM commission_settlements WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("settlement for order %s: %w", orderID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ReadTechnicianRate retrieves a technician's current commission rate.
// Read-only lookup into the profile collaborator's table.
func (s *SQLStore) ReadTechnicianRate(ctx context.Context, technicianID string) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := s.db.GetContext(ctx, &rate,
		"SELECT commission_rate FROM technicians WHERE id = $1", technicianID)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("technician %s: %w", technicianID, apperr.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}
