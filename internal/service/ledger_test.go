package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
	"workshop-service/internal/store"
)

func newTestLedger(t *testing.T) (*LedgerService, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	return NewLedgerService(st, nil, nil), st
}

func TestConsumeReverseRoundTrip(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 10, 2)

	consumption, err := ledger.Consume(ctx, "order-1", "part-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, consumption.Quantity)

	stock, err := st.ReadPartStock(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, 7, stock.QuantityOnHand)

	// reverse restores exactly the pre-consumption quantity
	reversed, err := ledger.Reverse(ctx, consumption.ID, admin)
	require.NoError(t, err)
	assert.True(t, reversed.Reversed)
	require.NotNil(t, reversed.ReversedAt)

	stock, err = st.ReadPartStock(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock.QuantityOnHand)

	// the record survives reversal for the audit trail
	kept, err := st.ReadConsumption(ctx, consumption.ID)
	require.NoError(t, err)
	assert.True(t, kept.Reversed)
	assert.Equal(t, 3, kept.Quantity)

	_, err = ledger.Reverse(ctx, consumption.ID, admin)
	assert.ErrorIs(t, err, apperr.ErrAlreadyReversed)
}

func TestReverseUnknownConsumption(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Reverse(context.Background(), "no-such-id", admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReverseRequiresAdmin(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 10, 2)

	consumption, err := ledger.Consume(ctx, "order-1", "part-1", 1)
	require.NoError(t, err)

	for _, a := range []models.Actor{techA, receptionist, client} {
		_, err = ledger.Reverse(ctx, consumption.ID, a)
		assert.ErrorIs(t, err, apperr.ErrForbidden, "role %s", a.Role)
	}
}

func TestConsumeInsufficientStock(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 2, 0)

	_, err := ledger.Consume(ctx, "order-1", "part-1", 3)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)

	stock, err := st.ReadPartStock(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, 2, stock.QuantityOnHand)

	consumptions, err := st.ListConsumptions(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, consumptions)
}

func TestConsumeUnknownPart(t *testing.T) {
	ledger, _ := newTestLedger(t)

	_, err := ledger.Consume(context.Background(), "order-1", "no-such-part", 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConsumeRejectsNonPositiveQuantity(t *testing.T) {
	ledger, st := newTestLedger(t)
	st.SeedPartStock("part-1", 10, 2)

	_, err := ledger.Consume(context.Background(), "order-1", "part-1", 0)
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)
	_, err = ledger.Consume(context.Background(), "order-1", "part-1", -2)
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)
}

func TestConcurrentConsumeNeverOversells(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 10, 0)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Consume(ctx, "order-1", "part-1", 3)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
		}
	}

	// 10 on hand, 3 per call: exactly three fit, the rest must fail
	assert.Equal(t, 3, succeeded)

	stock, err := st.ReadPartStock(ctx, "part-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stock.QuantityOnHand)
	assert.GreaterOrEqual(t, stock.QuantityOnHand, 0)
}

func TestLowStockParts(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 10, 2)
	st.SeedPartStock("part-2", 4, 1)

	low, err := ledger.LowStockParts(ctx)
	require.NoError(t, err)
	assert.Empty(t, low)

	_, err = ledger.Consume(ctx, "order-1", "part-1", 8)
	require.NoError(t, err)
	_, err = ledger.Consume(ctx, "order-1", "part-2", 3)
	require.NoError(t, err)

	low, err = ledger.LowStockParts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"part-1", "part-2"}, low)

	// replenishing above the threshold clears the flag
	_, err = ledger.Replenish(ctx, "part-2", 5, admin)
	require.NoError(t, err)
	low, err = ledger.LowStockParts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"part-1"}, low)
}

func TestSyncStockWithoutRedis(t *testing.T) {
	ledger, st := newTestLedger(t)
	st.SeedPartStock("part-1", 10, 2)

	assert.NoError(t, ledger.SyncStockToRedis(context.Background()))
}

func TestReplenish(t *testing.T) {
	ledger, st := newTestLedger(t)
	ctx := context.Background()
	st.SeedPartStock("part-1", 1, 2)

	stock, err := ledger.Replenish(ctx, "part-1", 9, admin)
	require.NoError(t, err)
	assert.Equal(t, 10, stock.QuantityOnHand)

	_, err = ledger.Replenish(ctx, "part-1", 0, admin)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)
	_, err = ledger.Replenish(ctx, "part-1", -4, admin)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	_, err = ledger.Replenish(ctx, "part-1", 5, techA)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = ledger.Replenish(ctx, "no-such-part", 5, admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
