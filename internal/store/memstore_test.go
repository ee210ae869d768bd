package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

func seedMemOrder(t *testing.T, m *MemStore, status string) *models.ServiceOrder {
	t.Helper()
	order := &models.ServiceOrder{
		ID:                 uuid.New().String(),
		OrderNumber:        "SO-2026-" + uuid.New().String()[:8],
		ClientID:           "cli-1",
		ReceptionistID:     "rec-1",
		EquipmentID:        "eq-1",
		Status:             status,
		Priority:           models.PriorityNormal,
		ProblemDescription: "no sound",
		Version:            1,
	}
	require.NoError(t, m.CreateOrder(context.Background(), order))
	return order
}

func TestWriteOrderIfCAS(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	order := seedMemOrder(t, m, models.StatusReceived)

	order.Status = models.StatusDiagnosis
	require.NoError(t, m.WriteOrderIf(ctx, order, 1))
	assert.Equal(t, int64(2), order.Version)

	// the stale version loses
	stale := *order
	stale.Status = models.StatusCancelled
	err := m.WriteOrderIf(ctx, &stale, 1)
	assert.ErrorIs(t, err, apperr.ErrConcurrentModification)

	got, err := m.ReadOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDiagnosis, got.Status)
	assert.Equal(t, int64(2), got.Version)
}

func TestWriteOrderIfUnknownOrder(t *testing.T) {
	m := NewMemStore()
	order := &models.ServiceOrder{ID: "missing", Status: models.StatusDiagnosis}
	err := m.WriteOrderIf(context.Background(), order, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompleteOrderIfAtomic(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	order := seedMemOrder(t, m, models.StatusTesting)
	tech := "tech-1"
	order.TechnicianID = &tech

	settlement := &models.CommissionSettlement{
		ID:           uuid.New().String(),
		OrderID:      order.ID,
		TechnicianID: tech,
		RateApplied:  decimal.RequireFromString("15"),
		Amount:       decimal.RequireFromString("15.00"),
	}

	// a lost CAS must leave no settlement behind
	order.Status = models.StatusCompleted
	err := m.CompleteOrderIf(ctx, order, 99, settlement)
	assert.ErrorIs(t, err, apperr.ErrConcurrentModification)
	_, err = m.ReadSettlement(ctx, order.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, m.CompleteOrderIf(ctx, order, 1, settlement))

	got, err := m.ReadSettlement(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, settlement.ID, got.ID)

	// a second settlement for the same order can never be written
	err = m.CompleteOrderIf(ctx, order, 2, settlement)
	assert.ErrorIs(t, err, apperr.ErrConcurrentModification)
}

func TestMemStoreReadsCopy(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	order := seedMemOrder(t, m, models.StatusReceived)

	got, err := m.ReadOrder(ctx, order.ID)
	require.NoError(t, err)
	got.Status = models.StatusCancelled // mutating the copy

	again, err := m.ReadOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, again.Status)
}

func TestStatusHistoryAppendOnly(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()
	order := seedMemOrder(t, m, models.StatusReceived)

	events := []models.StatusEvent{
		{OrderID: order.ID, FromStatus: models.StatusReceived, ToStatus: models.StatusDiagnosis},
		{OrderID: order.ID, FromStatus: models.StatusDiagnosis, ToStatus: models.StatusRepair},
	}
	for i := range events {
		require.NoError(t, m.AppendStatusEvent(ctx, &events[i]))
	}

	history, err := m.ListStatusHistory(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.StatusDiagnosis, history[0].ToStatus)
	assert.Equal(t, models.StatusRepair, history[1].ToStatus)
}
