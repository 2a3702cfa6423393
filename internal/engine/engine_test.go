package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibtrader/internal/allocation"
	"fibtrader/internal/broker"
	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
	"fibtrader/internal/risk"
	"fibtrader/internal/strategy"
	"fibtrader/internal/symbol"
)

type quoteBook map[string]md.Quote

func (b quoteBook) Quote(_ context.Context, ticker string) (md.Quote, error) {
	q, ok := b[symbol.Normalize(ticker)]
	if !ok {
		return md.Quote{}, fmt.Errorf("%w: %s", md.ErrDataUnavailable, ticker)
	}
	return q, nil
}

type failingSink struct{}

func (failingSink) Execute(_ context.Context, trade ledger.Trade) (ledger.Trade, error) {
	return trade, errors.New("exchange offline")
}

// markupSink fills every order at a fixed price regardless of the quote.
type markupSink struct{ price decimal.Decimal }

func (s markupSink) Execute(_ context.Context, trade ledger.Trade) (ledger.Trade, error) {
	trade.Price = s.price
	trade.ExecutedAt = time.Date(2024, 3, 6, 11, 0, 0, 0, time.UTC)
	return trade, nil
}

func quote(ticker string, price float64, marketCap float64) md.Quote {
	return md.Quote{
		Ticker:            ticker,
		LastPrice:         price,
		DaysHigh:          price + 5,
		DaysLow:           price - 5,
		FiftyDayAvg:       price,
		Week52High:        price * 1.5,
		Week52Low:         price * 0.5,
		Volume:            1000,
		AvgDailyVolume10d: 1000,
		LastTradeTime:     md.TimeOfDay{Hour: 11},
		MarketCap:         marketCap,
	}
}

// supportQuote sits on the 0.5 retracement with light volume.
func supportQuote(ticker string) md.Quote {
	return md.Quote{
		Ticker:            ticker,
		LastPrice:         100,
		DaysHigh:          102,
		DaysLow:           98,
		FiftyDayAvg:       90,
		Week52High:        120,
		Week52Low:         80,
		Volume:            1000,
		AvgDailyVolume10d: 2000,
		LastTradeTime:     md.TimeOfDay{Hour: 15, Minute: 30},
		MarketCap:         3e12,
	}
}

type harness struct {
	engine *Engine
	ledger *ledger.Ledger
	quotes quoteBook
}

func newHarness(t *testing.T, capital int64, quotes quoteBook) *harness {
	return newHarnessWithSink(t, capital, quotes, nil)
}

func newHarnessWithSink(t *testing.T, capital int64, quotes quoteBook, sink broker.Sink) *harness {
	t.Helper()
	log := zerolog.Nop()
	l := ledger.New("test", decimal.NewFromInt(capital), symbol.NewRegistry())
	cache := md.NewCache(quotes)
	if sink == nil {
		sink = broker.NewSimulated(cache)
	}
	alloc := allocation.NewManager(l.InitialCapital(), allocation.DefaultPolicy(), cache, log)
	settler := NewSettler(l, alloc, risk.NewGate(log), sink, DefaultCommission, log)
	strat, err := strategy.New(strategy.DefaultName)
	require.NoError(t, err)
	e := New(Options{}, strat, cache, settler, l, nil, log)
	return &harness{engine: e, ledger: l, quotes: quotes}
}

func (h *harness) seed(t *testing.T, ticker string, shares int, avg string, tier allocation.Tier) {
	t.Helper()
	price := decimal.RequireFromString(avg)
	require.NoError(t, h.ledger.Update(func(b *ledger.Book) error {
		if err := b.AdjustShares(b.Resolve(ticker), shares, price, string(tier)); err != nil {
			return err
		}
		b.Debit(price.Mul(decimal.NewFromInt(int64(shares))))
		return nil
	}))
}

func (h *harness) watch(t *testing.T, tickers ...string) {
	t.Helper()
	require.NoError(t, h.ledger.Update(func(b *ledger.Book) error {
		for _, ticker := range tickers {
			b.AddWatch(b.Resolve(ticker))
		}
		return nil
	}))
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestSellFullPosition(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{"ACME": quote("ACME", 60, 3e12)})
	h.seed(t, "ACME", 10, "50", allocation.LargeCap)
	assertDecimal(t, "500", h.ledger.Funds())

	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["ACME"],
		Intent: strategy.TradeIntent{Action: strategy.Sell, Qty: 10},
	})

	require.Equal(t, ResultExecuted, outcome.Result)
	assertDecimal(t, "1080", h.ledger.Funds())
	assertDecimal(t, "1100", h.ledger.NetWorth())
	assert.Equal(t, 0, h.ledger.Shares("ACME"))
	assert.Empty(t, h.ledger.Positions())

	trades := h.ledger.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, ledger.Sell, trades[0].Side)
	assert.Equal(t, ledger.Market, trades[0].Kind)
	assertDecimal(t, "100", trades[0].Realized)
	assertDecimal(t, "20", trades[0].Commission)
	assertDecimal(t, "60", trades[0].Price)
}

func TestSellPartialPositionUsesSoldShares(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{"ACME": quote("ACME", 60, 3e12)})
	h.seed(t, "ACME", 10, "50", allocation.LargeCap)

	outcome, err := h.engine.Trade(context.Background(), "acme", strategy.Sell, 4)
	require.NoError(t, err)
	require.Equal(t, ResultExecuted, outcome.Result)

	assertDecimal(t, "720", h.ledger.Funds())
	assertDecimal(t, "1040", h.ledger.NetWorth())
	assert.Equal(t, 6, h.ledger.Shares("ACME"))
	assertDecimal(t, "50", h.ledger.AverageCost("ACME"))
}

func TestSellWithoutPositionDropped(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{"ACME": quote("ACME", 60, 3e12)})
	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["ACME"],
		Intent: strategy.TradeIntent{Action: strategy.Sell},
	})
	assert.Equal(t, ResultDropped, outcome.Result)
	assert.Equal(t, risk.ErrNoPosition.Error(), outcome.Reason)
	assert.Empty(t, h.ledger.Trades())
}

func TestBuySizedByAllocation(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": supportQuote("ACME")})
	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["ACME"],
		Intent: strategy.TradeIntent{Action: strategy.Buy},
	})

	require.Equal(t, ResultExecuted, outcome.Result)
	require.NotNil(t, outcome.Trade)
	assert.Equal(t, 40, outcome.Trade.Shares)
	assertDecimal(t, "96000", h.ledger.Funds())
	assertDecimal(t, "100000", h.ledger.NetWorth())

	positions := h.ledger.Positions()
	require.Len(t, positions, 1)
	assert.Equal(t, string(allocation.LargeCap), positions[0].Tier)
}

func TestRepeatBuyInsideAveragingBandDropped(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": quote("ACME", 101, 3e12)})
	h.seed(t, "ACME", 5, "100", allocation.LargeCap)

	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["ACME"],
		Intent: strategy.TradeIntent{Action: strategy.Buy},
	})
	assert.Equal(t, ResultDropped, outcome.Result)
	assert.Contains(t, outcome.Reason, risk.ErrAveragingGate.Error())
	assert.Equal(t, 5, h.ledger.Shares("ACME"))
}

func TestRepeatBuyOutsideAveragingBandBlends(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": quote("ACME", 80, 3e12)})
	h.seed(t, "ACME", 50, "100", allocation.LargeCap)

	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["ACME"],
		Intent: strategy.TradeIntent{Action: strategy.Buy},
	})
	require.Equal(t, ResultExecuted, outcome.Result)
	assert.Equal(t, 100, h.ledger.Shares("ACME"))
	assertDecimal(t, "90", h.ledger.AverageCost("ACME"))
}

func TestBuyDroppedWhenTierFull(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"NEWCO": quote("NEWCO", 10, 100_000_000)})
	for i := 1; i <= 5; i++ {
		h.seed(t, fmt.Sprintf("SPEC%d", i), 1, "1", allocation.Speculative)
	}

	outcome := h.engine.settler.Settle(context.Background(), Signal{
		Quote:  h.quotes["NEWCO"],
		Intent: strategy.TradeIntent{Action: strategy.Buy},
	})
	assert.Equal(t, ResultDropped, outcome.Result)
	assert.Equal(t, risk.ErrTierFull.Error(), outcome.Reason)
	assert.Equal(t, 0, h.ledger.Shares("NEWCO"))
}

func TestManualBuyInsufficientFundsDropped(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{"ACME": quote("ACME", 100, 3e12)})
	outcome, err := h.engine.Trade(context.Background(), "ACME", strategy.Buy, 20)
	require.NoError(t, err)
	assert.Equal(t, ResultDropped, outcome.Result)
	assert.Contains(t, outcome.Reason, risk.ErrInsufficientFunds.Error())
	assertDecimal(t, "1000", h.ledger.Funds())
}

func TestExecutionFailureLeavesLedgerUntouched(t *testing.T) {
	h := newHarnessWithSink(t, 100000, quoteBook{"ACME": quote("ACME", 100, 3e12)}, failingSink{})
	outcome, err := h.engine.Trade(context.Background(), "ACME", strategy.Buy, 1)
	require.NoError(t, err)
	assert.Equal(t, ResultFailed, outcome.Result)
	assertDecimal(t, "100000", h.ledger.Funds())
	assert.Empty(t, h.ledger.Trades())
}

func TestTradeRejectsNonPositiveShares(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{})
	_, err := h.engine.Trade(context.Background(), "ACME", strategy.Buy, 0)
	assert.Error(t, err)
}

func TestRunCycleSkipsUnavailableSymbol(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": supportQuote("ACME")})
	path := filepath.Join(t.TempDir(), "decisions.ndjson")
	decisions, err := NewDecisionLogger(path, "run-1", zerolog.Nop())
	require.NoError(t, err)
	h.engine.decisions = decisions
	h.watch(t, "GONE", "ACME")

	report := h.engine.RunCycle(context.Background())
	require.NoError(t, decisions.Close())

	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Executed)
	assertDecimal(t, "0", report.Unrealized)
	assert.Equal(t, 40, h.ledger.Shares("ACME"))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	var lines []Decision
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var d Decision
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &d))
		lines = append(lines, d)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "GONE", lines[0].Symbol)
	assert.Equal(t, ResultSkipped, lines[0].Result)
	assert.Equal(t, "ACME", lines[1].Symbol)
	assert.Equal(t, ResultExecuted, lines[1].Result)
	assert.Equal(t, strategy.Buy, lines[1].Intent)
	assert.Equal(t, "run-1", lines[1].RunID)
	assert.NotEmpty(t, lines[1].TradeID)
}

func TestRunCycleSkipsNonFiniteQuote(t *testing.T) {
	bad := supportQuote("BAD")
	bad.LastPrice = math.NaN()
	h := newHarness(t, 100000, quoteBook{"ACME": supportQuote("ACME"), "BAD": bad})
	h.watch(t, "ACME", "BAD")

	var report CycleReport
	require.NotPanics(t, func() { report = h.engine.RunCycle(context.Background()) })

	assert.Equal(t, 1, report.Evaluated)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Executed)
	assert.Equal(t, 40, h.ledger.Shares("ACME"))
	assert.Zero(t, h.ledger.Shares("BAD"))

	_, err := h.engine.Trade(context.Background(), "BAD", strategy.Buy, 1)
	assert.ErrorIs(t, err, md.ErrDataUnavailable)
}

func TestBuyFillAboveQuoteIsRecordedAndReported(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	ctx := context.Background()
	cache := md.NewCache(quoteBook{"ACME": quote("ACME", 100, 3e12)})
	l := ledger.New("test", decimal.NewFromInt(1000), symbol.NewRegistry())
	alloc := allocation.NewManager(l.InitialCapital(), allocation.DefaultPolicy(), cache, log)
	settler := NewSettler(l, alloc, risk.NewGate(log), markupSink{price: decimal.NewFromInt(120)}, DefaultCommission, log)

	q, err := cache.Quote(ctx, "ACME")
	require.NoError(t, err)
	outcome := settler.Settle(ctx, Signal{Quote: q, Intent: strategy.TradeIntent{Action: strategy.Buy, Qty: 9, Reason: "manual"}})

	require.Equal(t, ResultExecuted, outcome.Result)
	assert.Equal(t, 9, l.Shares("ACME"))
	assertDecimal(t, "-80", l.Funds())
	assert.Contains(t, buf.String(), "fill cost exceeded available funds")
}

func TestRunCycleMarketClosed(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": supportQuote("ACME")})
	session := risk.DefaultSession(time.UTC)
	h.engine.opts.Session = &session
	h.engine.now = func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }
	h.watch(t, "ACME")

	report := h.engine.RunCycle(context.Background())
	assert.True(t, report.MarketClosed)
	assert.Zero(t, report.Evaluated)
	assert.Empty(t, h.ledger.Trades())
}

func TestRunStopsAfterDuration(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{"ACME": supportQuote("ACME")})
	h.watch(t, "ACME")
	clock := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	h.engine.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}
	h.engine.opts.Duration = time.Hour
	h.engine.opts.Interval = time.Millisecond

	require.NoError(t, h.engine.Run(context.Background()))
	assert.Len(t, h.ledger.Trades(), 1)
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, 100000, quoteBook{})
	h.engine.opts.Interval = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.engine.Run(ctx), context.Canceled)
}

func TestWatchAndUnwatch(t *testing.T) {
	h := newHarness(t, 1000, quoteBook{
		"MSFT": quote("MSFT", 300, 3e12),
		"IBM":  quote("IBM", 150, 3e12),
		"DEAD": quote("DEAD", 0, 1e6),
	})
	ctx := context.Background()

	sym, err := h.engine.Watch(ctx, "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", sym.Ticker)

	_, err = h.engine.Watch(ctx, "MSFT")
	assert.ErrorIs(t, err, ErrAlreadyWatched)
	_, err = h.engine.Watch(ctx, "$$")
	assert.ErrorIs(t, err, md.ErrInvalidSymbol)
	_, err = h.engine.Watch(ctx, "DEAD")
	assert.ErrorIs(t, err, md.ErrInvalidSymbol)

	assert.ErrorIs(t, h.engine.Unwatch(ctx, "IBM"), ErrNotWatched)
	require.NoError(t, h.engine.Unwatch(ctx, "Msft"))
	assert.Empty(t, h.ledger.WatchList())
}

func TestLiquidate(t *testing.T) {
	h := newHarness(t, 10000, quoteBook{
		"AAA": quote("AAA", 12, 3e12),
		"BBB": quote("BBB", 8, 3e12),
	})
	h.seed(t, "AAA", 10, "10", allocation.LargeCap)
	h.seed(t, "BBB", 10, "10", allocation.LargeCap)
	h.seed(t, "CCC", 1, "10", allocation.LargeCap)

	outcomes := h.engine.Liquidate(context.Background())
	require.Len(t, outcomes, 3)
	assert.Equal(t, ResultExecuted, outcomes["AAA"].Result)
	assert.Equal(t, ResultExecuted, outcomes["BBB"].Result)
	assert.Equal(t, ResultSkipped, outcomes["CCC"].Result)

	assert.Equal(t, 1, len(h.ledger.Positions()))
	// AAA realizes +20 and BBB -20; funds also pay two commissions.
	assertDecimal(t, "10000", h.ledger.NetWorth())
	assertDecimal(t, "9950", h.ledger.Funds())
}
