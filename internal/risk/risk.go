package risk

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/strategy"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoPosition        = errors.New("no position to sell")
	ErrAveragingGate     = errors.New("price within averaging band of cost basis")
	ErrTierFull          = errors.New("no allocation for new position")
	ErrOversell          = errors.New("sell exceeds held shares")
)

// averagingBand is the minimum relative distance between cost basis and
// price before a held position may be bought again.
var averagingBand = decimal.NewFromFloat(0.10)

// RiskContext is the ledger state relevant to one intent.
type RiskContext struct {
	Price       decimal.Decimal
	PositionQty int
	AvgCost     decimal.Decimal
	Funds       decimal.Decimal
}

type ApprovedIntent struct {
	Intent strategy.TradeIntent
	Reason string
}

type Gate struct {
	log zerolog.Logger
}

func NewGate(log zerolog.Logger) Gate {
	return Gate{log: log.With().Str("component", "risk").Logger()}
}

func (g Gate) Evaluate(intent strategy.TradeIntent, ctx RiskContext) (ApprovedIntent, error) {
	if intent.Action == strategy.Hold {
		return ApprovedIntent{Intent: intent, Reason: "hold"}, nil
	}

	g.log.Debug().
		Str("intent", string(intent.Action)).
		Int("qty", intent.Qty).
		Int("position", ctx.PositionQty).
		Str("price", ctx.Price.String()).
		Msg("risk evaluation")

	var err error
	switch intent.Action {
	case strategy.Buy:
		err = g.checkBuy(intent, ctx)
	case strategy.Sell:
		err = g.checkSell(intent, ctx)
	default:
		err = fmt.Errorf("unsupported action %q", intent.Action)
	}
	if err != nil {
		g.log.Info().Str("intent", string(intent.Action)).Str("reason", err.Error()).Msg("risk rejected")
		return ApprovedIntent{}, err
	}

	return ApprovedIntent{Intent: intent, Reason: "approved"}, nil
}

func (g Gate) checkBuy(intent strategy.TradeIntent, ctx RiskContext) error {
	if intent.Qty <= 0 {
		return ErrTierFull
	}
	if ctx.PositionQty > 0 {
		deviation := ctx.AvgCost.Sub(ctx.Price).Abs()
		if deviation.LessThan(ctx.AvgCost.Mul(averagingBand)) {
			return fmt.Errorf("%w: avg %s price %s", ErrAveragingGate, ctx.AvgCost, ctx.Price)
		}
	}
	cost := ctx.Price.Mul(decimal.NewFromInt(int64(intent.Qty)))
	if !ctx.Funds.Sub(cost).IsPositive() {
		return fmt.Errorf("%w: cost %s funds %s", ErrInsufficientFunds, cost, ctx.Funds)
	}
	return nil
}

func (g Gate) checkSell(intent strategy.TradeIntent, ctx RiskContext) error {
	if ctx.PositionQty <= 0 || intent.Qty <= 0 {
		return ErrNoPosition
	}
	if intent.Qty > ctx.PositionQty {
		return fmt.Errorf("%w: %d > %d", ErrOversell, intent.Qty, ctx.PositionQty)
	}
	return nil
}
