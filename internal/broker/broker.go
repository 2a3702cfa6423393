package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fibtrader/internal/ledger"
)

var ErrOrderNotFilled = errors.New("order not filled")

// Sink executes a pending trade and returns it stamped with the fill price.
type Sink interface {
	Execute(ctx context.Context, trade ledger.Trade) (ledger.Trade, error)
}

type Account struct {
	Equity      decimal.Decimal
	BuyingPower decimal.Decimal
}

// Client places market orders on an Alpaca paper account and waits for the
// fill.
type Client struct {
	client       *alpaca.Client
	pollInterval time.Duration
	log          zerolog.Logger
}

func New(apiKey, apiSecret, baseURL string, log zerolog.Logger) *Client {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	}
	return &Client{
		client:       alpaca.NewClient(opts),
		pollInterval: time.Second,
		log:          log.With().Str("component", "broker").Logger(),
	}
}

func (c *Client) Execute(ctx context.Context, trade ledger.Trade) (ledger.Trade, error) {
	side := alpaca.Buy
	if trade.Side == ledger.Sell {
		side = alpaca.Sell
	}
	qty := decimal.NewFromInt(int64(trade.Shares))
	order, err := c.client.PlaceOrder(alpaca.PlaceOrderRequest{
		Symbol:        trade.Ticker,
		Qty:           &qty,
		Side:          side,
		Type:          alpaca.Market,
		TimeInForce:   alpaca.Day,
		ClientOrderID: trade.ID.String(),
	})
	if err != nil {
		c.log.Error().Err(err).Str("side", string(side)).Str("symbol", trade.Ticker).Int("qty", trade.Shares).Msg("place order failed")
		return trade, err
	}
	c.log.Info().Str("order_id", order.ID).Str("side", string(side)).Str("symbol", trade.Ticker).Int("qty", trade.Shares).Str("status", string(order.Status)).Msg("place order success")

	for {
		switch order.Status {
		case "filled":
			if order.FilledAvgPrice == nil {
				return trade, fmt.Errorf("%w: %s has no fill price", ErrOrderNotFilled, order.ID)
			}
			trade.Price = *order.FilledAvgPrice
			trade.ExecutedAt = time.Now().UTC()
			if order.FilledAt != nil {
				trade.ExecutedAt = order.FilledAt.UTC()
			}
			return trade, nil
		case "canceled", "expired", "rejected", "suspended", "stopped":
			return trade, fmt.Errorf("%w: %s is %s", ErrOrderNotFilled, order.ID, order.Status)
		}

		if err := WaitForContext(ctx, c.pollInterval); err != nil {
			return trade, fmt.Errorf("%w: %s: %v", ErrOrderNotFilled, order.ID, err)
		}
		order, err = c.client.GetOrder(order.ID)
		if err != nil {
			c.log.Error().Err(err).Str("order_id", trade.ID.String()).Msg("fetch order failed")
			return trade, err
		}
	}
}

func (c *Client) Account(ctx context.Context) (Account, error) {
	acct, err := c.client.GetAccount()
	if err != nil {
		c.log.Error().Err(err).Msg("fetch account failed")
		return Account{}, err
	}
	c.log.Info().Str("equity", acct.Equity.String()).Str("buying_power", acct.BuyingPower.String()).Msg("account fetched")
	return Account{Equity: acct.Equity, BuyingPower: acct.BuyingPower}, nil
}

func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
