package store

import (
	"context"
	"database/sql"
	"fmt"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

// CreateOrder inserts a new service order
func (s *SQLStore) CreateOrder(ctx context.Context, order *models.ServiceOrder) error {
	query := `
		INSERT INTO service_orders
			(id, order_number, client_id, technician_id, receptionist_id, equipment_id,
			 status, priority, problem_description, device_condition, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	row := s.db.QueryRowxContext(ctx, query,
		order.ID, order.OrderNumber, order.ClientID, order.TechnicianID,
		order.ReceptionistID, order.EquipmentID, order.Status, order.Priority,
		order.ProblemDescription, order.DeviceCondition, order.Version)
	return row.Scan(&order.CreatedAt, &order.UpdatedAt)
}

// ReadOrder retrieves a service order by id
func (s *SQLStore) ReadOrder(ctx context.Context, id string) (*models.ServiceOrder, error) {
	var order models.ServiceOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM service_orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// WriteOrderIf writes the order's mutable fields conditioned on the
// version being unchanged since read. A lost race yields
// apperr.ErrConcurrentModification and writes nothing.
func (s *SQLStore) WriteOrderIf(ctx context.Context, order *models.ServiceOrder, expectedVersion int64) error {
	order.Version = expectedVersion + 1

	res, err := s.db.ExecContext(ctx, `
		UPDATE service_orders
		SET status = $1, technician_id = $2, final_cost = $3, version = $4, updated_at = NOW()
		WHERE id = $5 AND version = $6`,
		order.Status, order.TechnicianID, order.FinalCost, order.Version,
		order.ID, expectedVersion)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.orderWriteConflict(ctx, order.ID)
	}
	return nil
}

// CompleteOrderIf commits the COMPLETED status change and the settlement
// as one transaction: both happen or neither does.
func (s *SQLStore) CompleteOrderIf(ctx context.Context, order *models.ServiceOrder, expectedVersion int64, settlement *models.CommissionSettlement) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	order.Version = expectedVersion + 1

	res, err := tx.ExecContext(ctx, `
		UPDATE service_orders
		SET status = $1, technician_id = $2, final_cost = $3, version = $4, updated_at = NOW()
		WHERE id = $5 AND version = $6`,
		order.Status, order.TechnicianID, order.FinalCost, order.Version,
		order.ID, expectedVersion)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.orderWriteConflict(ctx, order.ID)
	}

	// order_id is unique; a second settlement for the same order can
	// only appear through a bug, and the insert aborts the whole unit.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO commission_settlements (id, order_id, technician_id, rate_applied, amount, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		settlement.ID, settlement.OrderID, settlement.TechnicianID,
		settlement.RateApplied, settlement.Amount, settlement.SettledAt)
	if err != nil {
		return fmt.Errorf("failed to append settlement: %w", err)
	}

	return tx.Commit()
}

// orderWriteConflict distinguishes a missing order from a lost CAS race.
func (s *SQLStore) orderWriteConflict(ctx context.Context, id string) error {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM service_orders WHERE id = $1)", id)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("order %s: %w", id, apperr.ErrNotFound)
	}
	return fmt.Errorf("order %s: %w", id, apperr.ErrConcurrentModification)
}

// AppendStatusEvent appends one row to the status history projection
func (s *SQLStore) AppendStatusEvent(ctx context.Context, ev *models.StatusEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_status_history (order_id, from_status, to_status, actor_id, actor_role, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.OrderID, ev.FromStatus, ev.ToStatus, ev.ActorID, ev.ActorRole, ev.OccurredAt)
	return err
}

// ListStatusHistory retrieves the status history for an order, oldest first
func (s *SQLStore) ListStatusHistory(ctx context.Context, orderID string) ([]models.StatusEvent, error) {
	var events []models.StatusEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM order_status_history WHERE order_id = $1 ORDER BY id", orderID)
	return events, err
}
