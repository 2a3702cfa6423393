package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"fibtrader/internal/symbol"
)

// ErrNoSnapshot is returned by stores that have nothing saved yet.
var ErrNoSnapshot = errors.New("no saved portfolio")

// Snapshot is the persisted form of a Ledger.
type Snapshot struct {
	AccountName    string           `json:"account_name" msgpack:"account_name"`
	InitialCapital decimal.Decimal  `json:"initial_capital" msgpack:"initial_capital"`
	AvailableFunds decimal.Decimal  `json:"available_funds" msgpack:"available_funds"`
	NetWorth       decimal.Decimal  `json:"net_worth" msgpack:"net_worth"`
	Positions      []PositionRecord `json:"positions" msgpack:"positions"`
	Trades         []Trade          `json:"trades" msgpack:"trades"`
	WatchList      []string         `json:"watch_list" msgpack:"watch_list"`
}

type PositionRecord struct {
	Ticker  string          `json:"ticker" msgpack:"ticker"`
	Shares  int             `json:"shares" msgpack:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost" msgpack:"avg_cost"`
	Tier    string          `json:"tier,omitempty" msgpack:"tier,omitempty"`
}

type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		AccountName:    l.state.accountName,
		InitialCapital: l.state.initialCapital,
		AvailableFunds: l.state.funds,
		NetWorth:       l.state.netWorth,
		Positions:      make([]PositionRecord, 0, len(l.state.positions)),
		Trades:         append([]Trade{}, l.state.trades...),
		WatchList:      make([]string, 0, len(l.state.watch)),
	}
	for _, p := range l.state.sortedPositions() {
		snap.Positions = append(snap.Positions, PositionRecord{
			Ticker:  p.Symbol.Ticker,
			Shares:  p.Shares,
			AvgCost: p.AvgCost,
			Tier:    p.Tier,
		})
	}
	for _, s := range l.state.watch {
		snap.WatchList = append(snap.WatchList, s.Ticker)
	}
	return snap
}

// FromSnapshot rebuilds a ledger, interning tickers through symbols.
func FromSnapshot(snap Snapshot, symbols *symbol.Registry) *Ledger {
	l := New(snap.AccountName, snap.InitialCapital, symbols)
	l.state.funds = snap.AvailableFunds
	l.state.netWorth = snap.NetWorth
	for _, rec := range snap.Positions {
		sym := l.symbols.Resolve(rec.Ticker)
		if sym == nil || rec.Shares <= 0 {
			continue
		}
		l.state.positions[sym] = &Position{Symbol: sym, Shares: rec.Shares, AvgCost: rec.AvgCost, Tier: rec.Tier}
	}
	l.state.trades = append([]Trade(nil), snap.Trades...)
	for _, ticker := range snap.WatchList {
		if sym := l.symbols.Resolve(ticker); sym != nil {
			l.state.watch = append(l.state.watch, sym)
		}
	}
	return l
}
