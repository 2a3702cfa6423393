package engine

import (
	"context"
	"errors"
	"fmt"

	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
	"fibtrader/internal/strategy"
	"fibtrader/internal/symbol"
)

var (
	ErrAlreadyWatched = errors.New("symbol already on watch list")
	ErrNotWatched     = errors.New("symbol not on watch list")
)

// Watch validates ticker through the quote provider and appends it to the
// watch list.
func (e *Engine) Watch(ctx context.Context, ticker string) (*symbol.Symbol, error) {
	if err := md.Validate(ctx, e.quotes, ticker); err != nil {
		return nil, err
	}
	var sym *symbol.Symbol
	err := e.ledger.Update(func(b *ledger.Book) error {
		sym = b.Resolve(ticker)
		if !b.AddWatch(sym) {
			return fmt.Errorf("%w: %s", ErrAlreadyWatched, sym)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info().Str("symbol", sym.Ticker).Msg("symbol watched")
	return sym, nil
}

// Unwatch removes ticker from the watch list. The ticker is validated like
// in Watch so delisted or mistyped names are reported as invalid.
func (e *Engine) Unwatch(ctx context.Context, ticker string) error {
	if err := md.Validate(ctx, e.quotes, ticker); err != nil {
		return err
	}
	err := e.ledger.Update(func(b *ledger.Book) error {
		sym := b.Resolve(ticker)
		if !b.RemoveWatch(sym) {
			return fmt.Errorf("%w: %s", ErrNotWatched, sym)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.log.Info().Str("symbol", symbol.Normalize(ticker)).Msg("symbol unwatched")
	return nil
}

// Trade settles a manual market order for an explicit share count. Buys skip
// allocation sizing but pass every settlement gate.
func (e *Engine) Trade(ctx context.Context, ticker string, action strategy.Action, shares int) (Outcome, error) {
	if shares <= 0 {
		return Outcome{}, fmt.Errorf("shares must be > 0, got %d", shares)
	}
	q, err := e.fetch(ctx, ticker)
	if err != nil {
		return Outcome{}, err
	}
	intent := strategy.TradeIntent{Action: action, Qty: shares, Reason: "manual"}
	outcome := e.settler.Settle(ctx, Signal{Quote: q, Intent: intent})
	e.decisions.Append(withOutcome(Decision{
		Timestamp: e.now(),
		Symbol:    q.Ticker,
		Price:     q.LastPrice,
		Intent:    action,
		IntentQty: shares,
		Reason:    intent.Reason,
	}, outcome))
	return outcome, nil
}

// Liquidate sells every open position through the normal sell path.
// Positions whose quote cannot be fetched are reported as skipped.
func (e *Engine) Liquidate(ctx context.Context) map[string]Outcome {
	e.quotes.Reset()
	out := make(map[string]Outcome)
	for _, pos := range e.ledger.Positions() {
		ticker := pos.Symbol.Ticker
		outcome, err := e.Trade(ctx, ticker, strategy.Sell, pos.Shares)
		if err != nil {
			e.log.Warn().Err(err).Str("symbol", ticker).Msg("liquidation skipped")
			outcome = Outcome{Result: ResultSkipped, Reason: err.Error()}
		}
		out[ticker] = outcome
	}
	return out
}
