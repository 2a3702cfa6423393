package strategy

import "fmt"

// FibRetracement trades bounces off retracement levels, using projected
// volume against the 10-day average to tell a holding level from a breaking
// one.
type FibRetracement struct{}

func NewFibRetracement() FibRetracement {
	return FibRetracement{}
}

func (FibRetracement) Name() string {
	return "fib-retracement"
}

type proximity int

const (
	none proximity = iota
	support
	resistance
)

func classify(price, level, threshold float64) proximity {
	if price >= level {
		if price <= level+threshold {
			return support
		}
		return none
	}
	if price >= level-threshold {
		return resistance
	}
	return none
}

func (f FibRetracement) Decide(snapshot MarketSnapshot) TradeIntent {
	q := snapshot.Quote
	levels := ComputeLevels(q)
	projected := ProjectVolume(q.Volume, q.LastTradeTime.Hour)

	metrics := map[string]float64{
		"low":              levels.Low,
		"high":             levels.High,
		"threshold":        levels.Threshold,
		"projected_volume": projected,
		"avg_volume_10d":   q.AvgDailyVolume10d,
	}

	if levels.Degenerate() {
		return TradeIntent{Action: Hold, Reason: ErrDegenerateRange.Error(), Metrics: metrics}
	}

	heavy := projected >= q.AvgDailyVolume10d
	intent := TradeIntent{Action: Hold, Reason: "no_level_in_range", Metrics: metrics}
	// Later levels override earlier ones; evaluation order decides conflicts.
	for i, level := range levels.Prices {
		var action Action
		var kind string
		switch classify(q.LastPrice, level, levels.Threshold) {
		case support:
			kind = "support"
			action = Buy
			if heavy {
				action = Sell
			}
		case resistance:
			kind = "resistance"
			action = Sell
			if heavy {
				action = Buy
			}
		default:
			continue
		}
		intent.Action = action
		intent.Reason = fmt.Sprintf("%s_%s_volume_at_%.3f", kind, volumeLabel(heavy), Ratios[i])
		metrics["level"] = level
	}

	if intent.Action == Sell {
		intent.Qty = snapshot.PositionQty
	}
	return intent
}

func volumeLabel(heavy bool) string {
	if heavy {
		return "heavy"
	}
	return "light"
}
