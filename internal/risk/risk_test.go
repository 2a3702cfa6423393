package risk

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibtrader/internal/strategy"
)

func d(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func TestGateApprovesHold(t *testing.T) {
	approved, err := NewGate(zerolog.Nop()).Evaluate(strategy.TradeIntent{Action: strategy.Hold}, RiskContext{})
	require.NoError(t, err)
	assert.Equal(t, "hold", approved.Reason)
}

func TestGateApprovesFreshBuy(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Buy, Qty: 10}
	_, err := NewGate(zerolog.Nop()).Evaluate(intent, RiskContext{Price: d(100), Funds: d(1500)})
	assert.NoError(t, err)
}

func TestGateRejectsZeroSizedBuy(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Buy}
	_, err := NewGate(zerolog.Nop()).Evaluate(intent, RiskContext{Price: d(100), Funds: d(1500)})
	assert.True(t, errors.Is(err, ErrTierFull))
}

func TestGateRejectsRepeatBuyWithinAveragingBand(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Buy, Qty: 1}
	ctx := RiskContext{Price: d(101), PositionQty: 5, AvgCost: d(100), Funds: d(10000)}
	_, err := NewGate(zerolog.Nop()).Evaluate(intent, ctx)
	assert.True(t, errors.Is(err, ErrAveragingGate))
}

func TestGateAllowsRepeatBuyOutsideAveragingBand(t *testing.T) {
	gate := NewGate(zerolog.Nop())
	intent := strategy.TradeIntent{Action: strategy.Buy, Qty: 1}

	_, err := gate.Evaluate(intent, RiskContext{Price: d(90), PositionQty: 5, AvgCost: d(100), Funds: d(10000)})
	assert.NoError(t, err)

	_, err = gate.Evaluate(intent, RiskContext{Price: d(115), PositionQty: 5, AvgCost: d(100), Funds: d(10000)})
	assert.NoError(t, err)
}

func TestGateRejectsInsufficientFunds(t *testing.T) {
	gate := NewGate(zerolog.Nop())
	intent := strategy.TradeIntent{Action: strategy.Buy, Qty: 10}

	_, err := gate.Evaluate(intent, RiskContext{Price: d(100), Funds: d(999)})
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	// Funds must stay strictly positive after the buy.
	_, err = gate.Evaluate(intent, RiskContext{Price: d(100), Funds: d(1000)})
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
}

func TestGateRejectsSellWithoutPosition(t *testing.T) {
	gate := NewGate(zerolog.Nop())

	_, err := gate.Evaluate(strategy.TradeIntent{Action: strategy.Sell, Qty: 0}, RiskContext{Price: d(10)})
	assert.True(t, errors.Is(err, ErrNoPosition))

	_, err = gate.Evaluate(strategy.TradeIntent{Action: strategy.Sell, Qty: 3}, RiskContext{Price: d(10)})
	assert.True(t, errors.Is(err, ErrNoPosition))
}

func TestGateRejectsOversell(t *testing.T) {
	intent := strategy.TradeIntent{Action: strategy.Sell, Qty: 11}
	_, err := NewGate(zerolog.Nop()).Evaluate(intent, RiskContext{Price: d(10), PositionQty: 10})
	assert.True(t, errors.Is(err, ErrOversell))
}

func TestMarketOpen(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	session := DefaultSession(ny)

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{name: "before open", at: time.Date(2024, 3, 6, 9, 29, 0, 0, ny), want: false},
		{name: "at open", at: time.Date(2024, 3, 6, 9, 30, 0, 0, ny), want: true},
		{name: "midday", at: time.Date(2024, 3, 6, 12, 0, 0, 0, ny), want: true},
		{name: "at close", at: time.Date(2024, 3, 6, 16, 0, 0, 0, ny), want: false},
		{name: "saturday", at: time.Date(2024, 3, 9, 12, 0, 0, 0, ny), want: false},
		{name: "utc input", at: time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, session.MarketOpen(tt.at))
		})
	}
}
