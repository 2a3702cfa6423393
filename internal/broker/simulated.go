package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
)

// Simulated fills every order at the symbol's current last trade price.
type Simulated struct {
	provider md.Provider
	now      func() time.Time
}

func NewSimulated(provider md.Provider) *Simulated {
	return &Simulated{provider: provider, now: time.Now}
}

func (s *Simulated) Execute(ctx context.Context, trade ledger.Trade) (ledger.Trade, error) {
	q, err := s.provider.Quote(ctx, trade.Ticker)
	if err != nil {
		return trade, fmt.Errorf("fill %s: %w", trade.Ticker, err)
	}
	trade.Price = decimal.NewFromFloat(q.LastPrice)
	trade.ExecutedAt = s.now().UTC()
	return trade, nil
}
