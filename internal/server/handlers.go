package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fibtrader/internal/engine"
	"fibtrader/internal/ledger"
	"fibtrader/internal/md"
)

type portfolioResponse struct {
	AccountName    string          `json:"account_name"`
	InitialCapital decimal.Decimal `json:"initial_capital"`
	AvailableFunds decimal.Decimal `json:"available_funds"`
	NetWorth       decimal.Decimal `json:"net_worth"`
	PercentChange  decimal.Decimal `json:"percent_change"`
	Unrealized     decimal.Decimal `json:"unrealized"`
	Positions      int             `json:"positions"`
	Trades         int             `json:"trades"`
}

type positionResponse struct {
	Symbol  string          `json:"symbol"`
	Shares  int             `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`
	Tier    string          `json:"tier,omitempty"`
}

type watchRequest struct {
	Symbol string `json:"symbol"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	prices := make(map[string]decimal.Decimal)
	for ticker, price := range s.prices() {
		prices[ticker] = decimal.NewFromFloat(price)
	}
	s.writeJSON(w, http.StatusOK, portfolioResponse{
		AccountName:    s.ledger.AccountName(),
		InitialCapital: s.ledger.InitialCapital(),
		AvailableFunds: s.ledger.Funds(),
		NetWorth:       s.ledger.NetWorth(),
		PercentChange:  s.ledger.PercentChange().Round(4),
		Unrealized:     s.ledger.Unrealized(prices),
		Positions:      len(s.ledger.Positions()),
		Trades:         len(s.ledger.Trades()),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.ledger.Positions()
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			Symbol:  p.Symbol.Ticker,
			Shares:  p.Shares,
			AvgCost: p.AvgCost,
			Tier:    p.Tier,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.ledger.Trades()
	if trades == nil {
		trades = []ledger.Trade{}
	}
	s.writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleWatchList(w http.ResponseWriter, r *http.Request) {
	watch := s.ledger.WatchList()
	out := make([]string, 0, len(watch))
	for _, sym := range watch {
		out = append(out, sym.Ticker)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sym, err := s.watcher.Watch(r.Context(), req.Symbol)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"symbol": sym.Ticker})
}

func (s *Server) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	if err := s.watcher.Unwatch(r.Context(), chi.URLParam(r, "symbol")); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, md.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrAlreadyWatched):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNotWatched):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
