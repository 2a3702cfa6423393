package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/broker"
	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
	"fibtrader/internal/risk"
	"fibtrader/internal/strategy"
)

type Options struct {
	// Interval is the pause between cycles.
	Interval time.Duration
	// Duration bounds a run; zero runs until the context is cancelled.
	Duration     time.Duration
	QuoteTimeout time.Duration
	// Session gates cycles to market hours. Nil disables the gate.
	Session *risk.Session
}

// CycleReport summarizes one pass over the watch list.
type CycleReport struct {
	MarketClosed bool
	Evaluated    int
	Skipped      int
	Executed     int
	Dropped      int
	Failed       int
	Unrealized   decimal.Decimal
}

type Engine struct {
	opts      Options
	strategy  strategy.Strategy
	quotes    *md.Cache
	settler   *Settler
	ledger    *ledger.Ledger
	decisions *DecisionLogger
	log       zerolog.Logger
	now       func() time.Time
}

func New(opts Options, strat strategy.Strategy, quotes *md.Cache, settler *Settler, l *ledger.Ledger, decisions *DecisionLogger, log zerolog.Logger) *Engine {
	return &Engine{
		opts:      opts,
		strategy:  strat,
		quotes:    quotes,
		settler:   settler,
		ledger:    l,
		decisions: decisions,
		log:       log.With().Str("component", "engine").Str("strategy", strat.Name()).Logger(),
		now:       time.Now,
	}
}

// Run repeats cycles every Interval until Duration elapses or ctx is
// cancelled. A cycle in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	start := e.now()
	e.log.Info().Dur("interval", e.opts.Interval).Dur("duration", e.opts.Duration).Msg("simulation started")
	for cycle := 1; ; cycle++ {
		report := e.RunCycle(context.WithoutCancel(ctx))
		e.log.Info().
			Int("cycle", cycle).
			Bool("market_closed", report.MarketClosed).
			Int("evaluated", report.Evaluated).
			Int("skipped", report.Skipped).
			Int("executed", report.Executed).
			Int("dropped", report.Dropped).
			Int("failed", report.Failed).
			Str("funds", e.ledger.Funds().StringFixed(2)).
			Str("net_worth", e.ledger.NetWorth().StringFixed(2)).
			Str("unrealized", report.Unrealized.StringFixed(2)).
			Msg("cycle complete")

		if e.opts.Duration > 0 && e.now().Sub(start) >= e.opts.Duration {
			e.log.Info().Msg("simulation duration elapsed")
			return nil
		}
		if err := broker.WaitForContext(ctx, e.opts.Interval); err != nil {
			return err
		}
	}
}

type evaluated struct {
	signal   Signal
	decision Decision
}

// RunCycle evaluates every watched symbol, then settles the resulting
// signals in watch-list order.
func (e *Engine) RunCycle(ctx context.Context) CycleReport {
	now := e.now()
	report := CycleReport{Unrealized: decimal.Zero}
	if e.opts.Session != nil && !e.opts.Session.MarketOpen(now) {
		e.log.Debug().Time("at", now).Msg("market closed")
		report.MarketClosed = true
		return report
	}

	e.quotes.Reset()
	var signals []evaluated
	for _, sym := range e.ledger.WatchList() {
		q, err := e.fetch(ctx, sym.Ticker)
		if err != nil {
			report.Skipped++
			if errors.Is(err, md.ErrDataUnavailable) {
				e.log.Warn().Err(err).Str("symbol", sym.Ticker).Msg("quote unavailable")
			} else {
				e.log.Error().Err(err).Str("symbol", sym.Ticker).Msg("quote fetch failed")
			}
			e.decisions.Append(Decision{Timestamp: now, Symbol: sym.Ticker, Result: ResultSkipped, RejectReason: err.Error()})
			continue
		}

		report.Evaluated++
		intent := e.strategy.Decide(strategy.MarketSnapshot{
			Timestamp:   now,
			Quote:       q,
			PositionQty: e.ledger.Shares(sym.Ticker),
		})
		signals = append(signals, evaluated{
			signal: Signal{Quote: q, Intent: intent},
			decision: Decision{
				Timestamp: now,
				Symbol:    sym.Ticker,
				Price:     q.LastPrice,
				Metrics:   intent.Metrics,
				Intent:    intent.Action,
				IntentQty: intent.Qty,
				Reason:    intent.Reason,
			},
		})
	}

	for _, ev := range signals {
		outcome := e.settler.Settle(ctx, ev.signal)
		record(&report, outcome)
		e.decisions.Append(withOutcome(ev.decision, outcome))
	}

	report.Unrealized = e.markToMarket()
	return report
}

func (e *Engine) fetch(ctx context.Context, ticker string) (md.Quote, error) {
	if e.opts.QuoteTimeout <= 0 {
		return e.quotes.Quote(ctx, ticker)
	}
	qctx, cancel := context.WithTimeout(ctx, e.opts.QuoteTimeout)
	defer cancel()
	return e.quotes.Quote(qctx, ticker)
}

func (e *Engine) markToMarket() decimal.Decimal {
	prices := make(map[string]decimal.Decimal)
	for ticker, price := range e.quotes.LastPrices() {
		prices[ticker] = decimal.NewFromFloat(price)
	}
	return e.ledger.Unrealized(prices)
}

func record(report *CycleReport, outcome Outcome) {
	switch outcome.Result {
	case ResultExecuted:
		report.Executed++
	case ResultDropped:
		report.Dropped++
	case ResultFailed:
		report.Failed++
	}
}

func withOutcome(d Decision, outcome Outcome) Decision {
	d.Result = outcome.Result
	if outcome.Result != ResultExecuted && outcome.Result != ResultHold {
		d.RejectReason = outcome.Reason
	}
	if outcome.Trade != nil {
		d.TradeID = outcome.Trade.ID.String()
		d.Shares = outcome.Trade.Shares
		d.FillPrice = outcome.Trade.Price.String()
	}
	return d
}
