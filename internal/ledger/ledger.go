// Package ledger holds portfolio state: positions with blended cost basis,
// funds, net worth, trade history and the watch list. It makes no decisions;
// every amount arrives pre-computed from settlement.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fibtrader/internal/symbol"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// OrderKind tags the order variant. Only market orders exist today.
type OrderKind string

const Market OrderKind = "market"

// Trade is one executed order. Records are appended and never changed.
type Trade struct {
	ID         uuid.UUID       `json:"id" msgpack:"id"`
	Ticker     string          `json:"ticker" msgpack:"ticker"`
	Side       Side            `json:"side" msgpack:"side"`
	Kind       OrderKind       `json:"kind" msgpack:"kind"`
	Shares     int             `json:"shares" msgpack:"shares"`
	Price      decimal.Decimal `json:"price" msgpack:"price"`
	Commission decimal.Decimal `json:"commission" msgpack:"commission"`
	Realized   decimal.Decimal `json:"realized" msgpack:"realized"`
	ExecutedAt time.Time       `json:"executed_at" msgpack:"executed_at"`
}

// NewTrade returns a pending market order with no price.
func NewTrade(ticker string, side Side, shares int) Trade {
	return Trade{
		ID:     uuid.New(),
		Ticker: symbol.Normalize(ticker),
		Side:   side,
		Kind:   Market,
		Shares: shares,
	}
}

func (t Trade) Cost() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(int64(t.Shares)))
}

type Position struct {
	Symbol  *symbol.Symbol
	Shares  int
	AvgCost decimal.Decimal
	Tier    string
}

type state struct {
	accountName    string
	initialCapital decimal.Decimal
	funds          decimal.Decimal
	netWorth       decimal.Decimal
	positions      map[*symbol.Symbol]*Position
	trades         []Trade
	watch          []*symbol.Symbol
}

func (s *state) clone() state {
	out := *s
	out.positions = make(map[*symbol.Symbol]*Position, len(s.positions))
	for k, v := range s.positions {
		p := *v
		out.positions[k] = &p
	}
	out.watch = append([]*symbol.Symbol(nil), s.watch...)
	return out
}

// Ledger serializes all access behind one lock so the simulation loop and the
// HTTP API can share it.
type Ledger struct {
	mu      sync.RWMutex
	symbols *symbol.Registry
	state   state
}

func New(accountName string, initialCapital decimal.Decimal, symbols *symbol.Registry) *Ledger {
	if symbols == nil {
		symbols = symbol.NewRegistry()
	}
	return &Ledger{
		symbols: symbols,
		state: state{
			accountName:    accountName,
			initialCapital: initialCapital,
			funds:          initialCapital,
			netWorth:       initialCapital,
			positions:      map[*symbol.Symbol]*Position{},
		},
	}
}

func (l *Ledger) Symbols() *symbol.Registry {
	return l.symbols
}

// Update runs fn with exclusive access. If fn returns an error every change it
// made is discarded.
func (l *Ledger) Update(fn func(b *Book) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	saved := l.state.clone()
	if err := fn(&Book{state: &l.state, symbols: l.symbols}); err != nil {
		l.state = saved
		return err
	}
	return nil
}

// Book is the mutation surface handed out by Update. It must not be retained.
type Book struct {
	state   *state
	symbols *symbol.Registry
}

func (b *Book) Resolve(ticker string) *symbol.Symbol {
	return b.symbols.Resolve(ticker)
}

func (b *Book) AddTrade(t Trade) {
	b.state.trades = append(b.state.trades, t)
}

// AdjustShares merges delta shares into the position for sym. Buys blend the
// average cost; sells leave it untouched. A position reaching zero is
// removed.
func (b *Book) AdjustShares(sym *symbol.Symbol, delta int, price decimal.Decimal, tier string) error {
	if sym == nil {
		return ErrUnknownSymbol
	}
	pos, ok := b.state.positions[sym]
	if !ok {
		if delta <= 0 {
			return fmt.Errorf("adjust %s by %d: no position", sym, delta)
		}
		b.state.positions[sym] = &Position{Symbol: sym, Shares: delta, AvgCost: price, Tier: tier}
		return nil
	}

	shares := pos.Shares + delta
	switch {
	case shares < 0:
		return fmt.Errorf("adjust %s by %d: only %d held", sym, delta, pos.Shares)
	case shares == 0:
		delete(b.state.positions, sym)
		return nil
	}
	if delta > 0 {
		held := pos.AvgCost.Mul(decimal.NewFromInt(int64(pos.Shares)))
		added := price.Mul(decimal.NewFromInt(int64(delta)))
		pos.AvgCost = held.Add(added).Div(decimal.NewFromInt(int64(shares)))
	}
	pos.Shares = shares
	return nil
}

func (b *Book) Debit(amount decimal.Decimal) {
	b.state.funds = b.state.funds.Sub(amount)
}

func (b *Book) Credit(amount decimal.Decimal) {
	b.state.funds = b.state.funds.Add(amount)
}

func (b *Book) AdjustNetWorth(amount decimal.Decimal) {
	b.state.netWorth = b.state.netWorth.Add(amount)
}

func (b *Book) Position(sym *symbol.Symbol) (Position, bool) {
	pos, ok := b.state.positions[sym]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

func (b *Book) Funds() decimal.Decimal {
	return b.state.funds
}

// Holdings lists every open position.
func (b *Book) Holdings() []Position {
	return b.state.sortedPositions()
}

// AddWatch appends sym to the watch list. It reports false if already present.
func (b *Book) AddWatch(sym *symbol.Symbol) bool {
	for _, s := range b.state.watch {
		if s == sym {
			return false
		}
	}
	b.state.watch = append(b.state.watch, sym)
	return true
}

func (b *Book) RemoveWatch(sym *symbol.Symbol) bool {
	for i, s := range b.state.watch {
		if s == sym {
			b.state.watch = append(b.state.watch[:i], b.state.watch[i+1:]...)
			return true
		}
	}
	return false
}

func (s *state) sortedPositions() []Position {
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol.Ticker < out[j].Symbol.Ticker
	})
	return out
}

func (l *Ledger) lookup(ticker string) (*Position, bool) {
	sym, ok := l.symbols.Lookup(ticker)
	if !ok {
		return nil, false
	}
	pos, ok := l.state.positions[sym]
	return pos, ok
}

func (l *Ledger) Shares(ticker string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos, ok := l.lookup(ticker); ok {
		return pos.Shares
	}
	return 0
}

func (l *Ledger) AverageCost(ticker string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if pos, ok := l.lookup(ticker); ok {
		return pos.AvgCost
	}
	return decimal.Zero
}

func (l *Ledger) AccountName() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.accountName
}

func (l *Ledger) InitialCapital() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.initialCapital
}

func (l *Ledger) Funds() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.funds
}

func (l *Ledger) NetWorth() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.netWorth
}

func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.sortedPositions()
}

// Trades returns a copy of the trade history in execution order.
func (l *Ledger) Trades() []Trade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Trade(nil), l.state.trades...)
}

func (l *Ledger) WatchList() []*symbol.Symbol {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*symbol.Symbol(nil), l.state.watch...)
}

// PercentChange is the signed change of net worth against initial capital,
// in percent.
func (l *Ledger) PercentChange() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state.initialCapital.IsZero() {
		return decimal.Zero
	}
	return l.state.netWorth.Sub(l.state.initialCapital).
		Div(l.state.initialCapital).
		Mul(decimal.NewFromInt(100))
}

// Unrealized marks open positions to the given prices. Positions without a
// price are skipped.
func (l *Ledger) Unrealized(prices map[string]decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := decimal.Zero
	for sym, pos := range l.state.positions {
		price, ok := prices[sym.Ticker]
		if !ok {
			continue
		}
		total = total.Add(price.Sub(pos.AvgCost).Mul(decimal.NewFromInt(int64(pos.Shares))))
	}
	return total
}
