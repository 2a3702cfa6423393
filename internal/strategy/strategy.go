package strategy

import (
	"time"

	"fibtrader/internal/md"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// MarketSnapshot is everything a strategy sees for one symbol in one cycle.
type MarketSnapshot struct {
	Timestamp   time.Time
	Quote       md.Quote
	PositionQty int
}

// TradeIntent is a directional signal. Buy intents with Qty 0 are sized by
// the allocation manager during settlement.
type TradeIntent struct {
	Action  Action
	Qty     int
	Reason  string
	Metrics map[string]float64
}

type Strategy interface {
	Name() string
	Decide(snapshot MarketSnapshot) TradeIntent
}
