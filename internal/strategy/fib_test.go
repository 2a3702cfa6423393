package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fibtrader/internal/md"
)

func dailyQuote(price, avgVolume float64) md.Quote {
	return md.Quote{
		Ticker:            "ACME",
		LastPrice:         price,
		DaysHigh:          102,
		DaysLow:           98,
		FiftyDayAvg:       90,
		Week52High:        120,
		Week52Low:         80,
		Volume:            1000,
		AvgDailyVolume10d: avgVolume,
		LastTradeTime:     md.TimeOfDay{Hour: 15, Minute: 30},
	}
}

func TestFibSupportLightVolumeBuys(t *testing.T) {
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: dailyQuote(100, 2000)})
	assert.Equal(t, Buy, intent.Action)
	assert.Zero(t, intent.Qty)
	assert.Contains(t, intent.Reason, "support_light")
	assert.InDelta(t, 100, intent.Metrics["level"], 1e-9)
}

func TestFibSupportHeavyVolumeSells(t *testing.T) {
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: dailyQuote(100, 1000), PositionQty: 7})
	assert.Equal(t, Sell, intent.Action)
	assert.Equal(t, 7, intent.Qty)
	assert.Contains(t, intent.Reason, "support_heavy")
}

func TestFibResistanceLightVolumeSells(t *testing.T) {
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: dailyQuote(100.45, 2000), PositionQty: 3})
	assert.Equal(t, Sell, intent.Action)
	assert.Equal(t, 3, intent.Qty)
	assert.Contains(t, intent.Reason, "resistance_light")
}

func TestFibResistanceHeavyVolumeBuys(t *testing.T) {
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: dailyQuote(100.45, 1000)})
	assert.Equal(t, Buy, intent.Action)
	assert.Contains(t, intent.Reason, "resistance_heavy")
}

func TestFibNoLevelHolds(t *testing.T) {
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: dailyQuote(101, 2000)})
	assert.Equal(t, Hold, intent.Action)
	assert.Equal(t, "no_level_in_range", intent.Reason)
}

func TestFibDegenerateRangeHolds(t *testing.T) {
	q := md.Quote{LastPrice: 100, DaysHigh: 100, DaysLow: 100, FiftyDayAvg: 100, Week52High: 100, Week52Low: 100, Volume: 10, AvgDailyVolume10d: 10}
	intent := NewFibRetracement().Decide(MarketSnapshot{Quote: q, PositionQty: 5})
	assert.Equal(t, Hold, intent.Action)
	assert.Equal(t, ErrDegenerateRange.Error(), intent.Reason)
}

func TestFibLastLevelWins(t *testing.T) {
	// 1000.4 sits within threshold above the 0.5 level and below the 0.618 level.
	q := md.Quote{
		LastPrice:     1000.4,
		DaysHigh:      1003.6,
		DaysLow:       996.5,
		FiftyDayAvg:   990,
		Week52High:    1100,
		Week52Low:     900,
		Volume:        1000,
		LastTradeTime: md.TimeOfDay{Hour: 15},
	}

	q.AvgDailyVolume10d = 5000
	light := NewFibRetracement().Decide(MarketSnapshot{Quote: q, PositionQty: 2})
	assert.Equal(t, Sell, light.Action)
	assert.Contains(t, light.Reason, "resistance")

	q.AvgDailyVolume10d = 100
	heavy := NewFibRetracement().Decide(MarketSnapshot{Quote: q})
	assert.Equal(t, Buy, heavy.Action)
	assert.Contains(t, heavy.Reason, "resistance")
}
