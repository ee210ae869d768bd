// Package commission computes technician earnings for completed orders.
package commission

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Settle computes the settlement for a completed order. Pure apart from
// id and timestamp generation: amount = finalCost * rate / 100, rounded
// half-even to the currency's minor unit. The caller (the lifecycle
// controller, nobody else) persists it atomically with the status change.
func Settle(order *models.ServiceOrder, rate decimal.Decimal) (*models.CommissionSettlement, error) {
	if order.FinalCost == nil {
		return nil, fmt.Errorf("order %s has no final cost: %w", order.ID, apperr.ErrInvalidPayload)
	}
	if order.TechnicianID == nil {
		return nil, fmt.Errorf("order %s has no technician: %w", order.ID, apperr.ErrInvalidPayload)
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return nil, fmt.Errorf("commission rate %s out of range: %w", rate, apperr.ErrInvalidPayload)
	}

	amount := order.FinalCost.Mul(rate).Div(hundred).RoundBank(2)

	return &models.CommissionSettlement{
		ID:           uuid.New().String(),
		OrderID:      order.ID,
		TechnicianID: *order.TechnicianID,
		RateApplied:  rate,
		Amount:       amount,
		SettledAt:    time.Now().UTC(),
	}, nil
}
