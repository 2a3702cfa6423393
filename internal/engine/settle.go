package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/allocation"
	"fibtrader/internal/broker"
	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
	"fibtrader/internal/risk"
	"fibtrader/internal/strategy"
)

const (
	ResultHold     = "hold"
	ResultExecuted = "executed"
	ResultDropped  = "dropped"
	ResultFailed   = "order_failed"
	ResultSkipped  = "data_unavailable"
)

// DefaultCommission is charged on every sell.
var DefaultCommission = decimal.NewFromInt(20)

// Signal is one strategy intent paired with the quote it was made on.
type Signal struct {
	Quote  md.Quote
	Intent strategy.TradeIntent
}

// Outcome reports what settlement did with a signal. Dropped signals are
// outcomes, not errors.
type Outcome struct {
	Result string
	Reason string
	Trade  *ledger.Trade
}

type Settler struct {
	ledger     *ledger.Ledger
	alloc      *allocation.Manager
	gate       risk.Gate
	sink       broker.Sink
	commission decimal.Decimal
	log        zerolog.Logger
}

func NewSettler(l *ledger.Ledger, alloc *allocation.Manager, gate risk.Gate, sink broker.Sink, commission decimal.Decimal, log zerolog.Logger) *Settler {
	return &Settler{
		ledger:     l,
		alloc:      alloc,
		gate:       gate,
		sink:       sink,
		commission: commission,
		log:        log.With().Str("component", "settlement").Logger(),
	}
}

func (s *Settler) Settle(ctx context.Context, sig Signal) Outcome {
	switch sig.Intent.Action {
	case strategy.Buy:
		return s.buy(ctx, sig)
	case strategy.Sell:
		return s.sell(ctx, sig)
	default:
		return Outcome{Result: ResultHold, Reason: sig.Intent.Reason}
	}
}

func (s *Settler) riskContext(ticker string, price decimal.Decimal) risk.RiskContext {
	return risk.RiskContext{
		Price:       price,
		PositionQty: s.ledger.Shares(ticker),
		AvgCost:     s.ledger.AverageCost(ticker),
		Funds:       s.ledger.Funds(),
	}
}

func (s *Settler) holdings() []allocation.Holding {
	positions := s.ledger.Positions()
	out := make([]allocation.Holding, 0, len(positions))
	for _, p := range positions {
		out = append(out, allocation.Holding{Ticker: p.Symbol.Ticker, Tier: p.Tier})
	}
	return out
}

func (s *Settler) buy(ctx context.Context, sig Signal) Outcome {
	ticker := sig.Quote.Ticker
	price := decimal.NewFromFloat(sig.Quote.LastPrice)
	tier := s.alloc.Classify(sig.Quote.MarketCap)

	intent := sig.Intent
	if intent.Qty == 0 {
		held := s.alloc.HeldInTier(ctx, tier, s.holdings())
		intent.Qty = s.alloc.Size(tier, price, held)
	}

	if _, err := s.gate.Evaluate(intent, s.riskContext(ticker, price)); err != nil {
		return s.drop(ticker, intent, err)
	}

	filled, err := s.sink.Execute(ctx, ledger.NewTrade(ticker, ledger.Buy, intent.Qty))
	if err != nil {
		return s.fail(ticker, intent, err)
	}

	// The order is filled at the broker; the ledger records it even when the
	// fill price leaves no funds.
	var remaining decimal.Decimal
	err = s.ledger.Update(func(b *ledger.Book) error {
		if err := b.AdjustShares(b.Resolve(ticker), filled.Shares, filled.Price, string(tier)); err != nil {
			return err
		}
		b.Debit(filled.Cost())
		b.AddTrade(filled)
		remaining = b.Funds()
		return nil
	})
	if err != nil {
		return s.fail(ticker, intent, err)
	}
	if !remaining.IsPositive() {
		s.log.Error().
			Str("symbol", ticker).
			Str("quoted", price.String()).
			Str("filled", filled.Price.String()).
			Str("funds", remaining.String()).
			Msg("fill cost exceeded available funds")
	}

	s.log.Info().
		Str("symbol", ticker).
		Str("side", string(filled.Side)).
		Int("shares", filled.Shares).
		Str("price", filled.Price.String()).
		Str("tier", string(tier)).
		Msg("trade executed")
	return Outcome{Result: ResultExecuted, Reason: intent.Reason, Trade: &filled}
}

func (s *Settler) sell(ctx context.Context, sig Signal) Outcome {
	ticker := sig.Quote.Ticker
	price := decimal.NewFromFloat(sig.Quote.LastPrice)
	intent := sig.Intent

	if _, err := s.gate.Evaluate(intent, s.riskContext(ticker, price)); err != nil {
		return s.drop(ticker, intent, err)
	}

	filled, err := s.sink.Execute(ctx, ledger.NewTrade(ticker, ledger.Sell, intent.Qty))
	if err != nil {
		return s.fail(ticker, intent, err)
	}

	err = s.ledger.Update(func(b *ledger.Book) error {
		sym := b.Resolve(ticker)
		pos, ok := b.Position(sym)
		if !ok {
			return risk.ErrNoPosition
		}
		sold := decimal.NewFromInt(int64(filled.Shares))
		basis := pos.AvgCost.Mul(sold)
		result := filled.Price.Sub(pos.AvgCost).Mul(sold)

		filled.Commission = s.commission
		filled.Realized = result
		if err := b.AdjustShares(sym, -filled.Shares, filled.Price, ""); err != nil {
			return err
		}
		b.Credit(result.Sub(s.commission).Add(basis))
		b.AdjustNetWorth(result)
		b.AddTrade(filled)
		return nil
	})
	if err != nil {
		if errors.Is(err, risk.ErrNoPosition) {
			return s.drop(ticker, intent, err)
		}
		return s.fail(ticker, intent, err)
	}

	s.log.Info().
		Str("symbol", ticker).
		Str("side", string(filled.Side)).
		Int("shares", filled.Shares).
		Str("price", filled.Price.String()).
		Str("realized", filled.Realized.String()).
		Msg("trade executed")
	return Outcome{Result: ResultExecuted, Reason: intent.Reason, Trade: &filled}
}

func (s *Settler) drop(ticker string, intent strategy.TradeIntent, err error) Outcome {
	s.log.Info().Str("symbol", ticker).Str("intent", string(intent.Action)).Int("qty", intent.Qty).Str("reason", err.Error()).Msg("signal dropped")
	return Outcome{Result: ResultDropped, Reason: err.Error()}
}

func (s *Settler) fail(ticker string, intent strategy.TradeIntent, err error) Outcome {
	s.log.Error().Err(err).Str("symbol", ticker).Str("intent", string(intent.Action)).Int("qty", intent.Qty).Msg("execution failed")
	return Outcome{Result: ResultFailed, Reason: fmt.Sprintf("execute: %v", err)}
}
