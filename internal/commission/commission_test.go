package commission

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workshop-service/internal/apperr"
	"workshop-service/internal/models"
)

func orderWithCost(cost string) *models.ServiceOrder {
	c := decimal.RequireFromString(cost)
	tech := "tech-1"
	return &models.ServiceOrder{
		ID:           "order-1",
		TechnicianID: &tech,
		Status:       models.StatusCompleted,
		FinalCost:    &c,
	}
}

func TestSettleBasic(t *testing.T) {
	s, err := Settle(orderWithCost("100"), decimal.RequireFromString("15"))
	require.NoError(t, err)

	assert.Equal(t, "order-1", s.OrderID)
	assert.Equal(t, "tech-1", s.TechnicianID)
	assert.Equal(t, "15.00", s.Amount.StringFixed(2))
	assert.Equal(t, "15", s.RateApplied.String())
}

func TestSettleRoundsHalfEven(t *testing.T) {
	cases := []struct {
		cost, rate, want string
	}{
		{"33.33", "10", "3.33"},
		{"46.90", "5", "2.34"}, // 2.345 rounds down to even
		{"47.10", "5", "2.36"}, // 2.355 rounds up to even
		{"100", "0", "0.00"},
		{"0", "50", "0.00"},
		{"199.99", "100", "199.99"},
	}
	for _, tc := range cases {
		s, err := Settle(orderWithCost(tc.cost), decimal.RequireFromString(tc.rate))
		require.NoError(t, err, "cost=%s rate=%s", tc.cost, tc.rate)
		assert.Equal(t, tc.want, s.Amount.StringFixed(2), "cost=%s rate=%s", tc.cost, tc.rate)
	}
}

func TestSettleRateSnapshot(t *testing.T) {
	rate := decimal.RequireFromString("12.5")
	s, err := Settle(orderWithCost("200"), rate)
	require.NoError(t, err)

	// the settlement freezes the rate it was computed with
	assert.True(t, s.RateApplied.Equal(rate))
	assert.Equal(t, "25.00", s.Amount.StringFixed(2))
}

func TestSettleRejectsBadInput(t *testing.T) {
	_, err := Settle(orderWithCost("100"), decimal.RequireFromString("-1"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)

	_, err = Settle(orderWithCost("100"), decimal.RequireFromString("100.01"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)

	noCost := orderWithCost("100")
	noCost.FinalCost = nil
	_, err = Settle(noCost, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)

	noTech := orderWithCost("100")
	noTech.TechnicianID = nil
	_, err = Settle(noTech, decimal.RequireFromString("10"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPayload)
}
