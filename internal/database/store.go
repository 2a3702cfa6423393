package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fibtrader/internal/ledger"
)

// SQLiteStore saves ledger snapshots as rows. Save replaces the whole
// portfolio inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Save(ctx context.Context, snap ledger.Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"account", "positions", "trades", "watchlist"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO account(id, name, initial_capital, available_funds, net_worth, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)`,
		snap.AccountName, snap.InitialCapital.String(), snap.AvailableFunds.String(), snap.NetWorth.String(),
		time.Now().UTC()); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	for _, p := range snap.Positions {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO positions(ticker, shares, avg_cost, tier) VALUES (?, ?, ?, ?)`,
			p.Ticker, p.Shares, p.AvgCost.String(), p.Tier); err != nil {
			return fmt.Errorf("insert position %s: %w", p.Ticker, err)
		}
	}

	for i, t := range snap.Trades {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO trades(seq, id, ticker, side, kind, shares, price, commission, realized, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			i, t.ID.String(), t.Ticker, string(t.Side), string(t.Kind), t.Shares,
			t.Price.String(), t.Commission.String(), t.Realized.String(),
			t.ExecutedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert trade %s: %w", t.ID, err)
		}
	}

	for i, ticker := range snap.WatchList {
		if _, err = tx.ExecContext(ctx, `INSERT INTO watchlist(seq, ticker) VALUES (?, ?)`, i, ticker); err != nil {
			return fmt.Errorf("insert watch %s: %w", ticker, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	var initial, funds, netWorth string
	row := s.db.QueryRowContext(ctx, `
		SELECT name, initial_capital, available_funds, net_worth FROM account WHERE id = 1`)
	if err := row.Scan(&snap.AccountName, &initial, &funds, &netWorth); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Snapshot{}, ledger.ErrNoSnapshot
		}
		return ledger.Snapshot{}, fmt.Errorf("query account: %w", err)
	}
	var err error
	if snap.InitialCapital, err = decimal.NewFromString(initial); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("parse initial capital: %w", err)
	}
	if snap.AvailableFunds, err = decimal.NewFromString(funds); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("parse available funds: %w", err)
	}
	if snap.NetWorth, err = decimal.NewFromString(netWorth); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("parse net worth: %w", err)
	}

	if snap.Positions, err = s.positions(ctx); err != nil {
		return ledger.Snapshot{}, err
	}
	if snap.Trades, err = s.trades(ctx); err != nil {
		return ledger.Snapshot{}, err
	}
	if snap.WatchList, err = s.watchList(ctx); err != nil {
		return ledger.Snapshot{}, err
	}
	return snap, nil
}

func (s *SQLiteStore) positions(ctx context.Context) ([]ledger.PositionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, shares, avg_cost, tier FROM positions ORDER BY ticker ASC`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.PositionRecord, 0)
	for rows.Next() {
		var (
			p   ledger.PositionRecord
			avg string
		)
		if err := rows.Scan(&p.Ticker, &p.Shares, &avg, &p.Tier); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if p.AvgCost, err = decimal.NewFromString(avg); err != nil {
			return nil, fmt.Errorf("parse avg cost for %s: %w", p.Ticker, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) trades(ctx context.Context) ([]ledger.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, side, kind, shares, price, commission, realized, executed_at
		FROM trades ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	out := make([]ledger.Trade, 0)
	for rows.Next() {
		var (
			t                                     ledger.Trade
			id, side, kind                        string
			price, commission, realized, executed string
		)
		if err := rows.Scan(&id, &t.Ticker, &side, &kind, &t.Shares, &price, &commission, &realized, &executed); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		if t.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse trade id %q: %w", id, err)
		}
		t.Side = ledger.Side(side)
		t.Kind = ledger.OrderKind(kind)
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse trade price: %w", err)
		}
		if t.Commission, err = decimal.NewFromString(commission); err != nil {
			return nil, fmt.Errorf("parse trade commission: %w", err)
		}
		if t.Realized, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("parse trade result: %w", err)
		}
		if t.ExecutedAt, err = time.Parse(time.RFC3339Nano, executed); err != nil {
			return nil, fmt.Errorf("parse trade time: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) watchList(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ticker FROM watchlist ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query watchlist: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var ticker string
		if err := rows.Scan(&ticker); err != nil {
			return nil, fmt.Errorf("scan watch: %w", err)
		}
		out = append(out, ticker)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate watchlist: %w", err)
	}
	return out, nil
}
