package md

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/rs/zerolog"

	"fibtrader/internal/symbol"
)

const (
	fiftyDayWindow = 50
	volumeWindow   = 10
	yearOfBars     = 260

	defaultRequestTimeout = 10 * time.Second
)

// AlpacaOptions configures AlpacaProvider.
type AlpacaOptions struct {
	APIKey    string
	APISecret string
	Feed      string
	// MarketCaps maps tickers to magnitude-suffixed capitalizations; the
	// market data API does not publish them.
	MarketCaps map[string]string
	Location   *time.Location
	// RequestTimeout bounds each HTTP request, including calls abandoned by
	// an expired context. Defaults to 10s.
	RequestTimeout time.Duration
}

// AlpacaProvider builds quote snapshots from the latest trade, the current
// daily bar and a year of daily bars.
type AlpacaProvider struct {
	client *marketdata.Client
	http   *http.Client
	feed   marketdata.Feed
	caps   map[string]string
	loc    *time.Location
	now    func() time.Time
	log    zerolog.Logger
}

func NewAlpacaProvider(opts AlpacaOptions, log zerolog.Logger) *AlpacaProvider {
	caps := make(map[string]string, len(opts.MarketCaps))
	for ticker, value := range opts.MarketCaps {
		caps[symbol.Normalize(ticker)] = value
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	httpClient := &http.Client{Timeout: timeout}
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:     opts.APIKey,
			APISecret:  opts.APISecret,
			HTTPClient: httpClient,
		}),
		http: httpClient,
		feed: parseFeed(opts.Feed),
		caps: caps,
		loc:  loc,
		now:  time.Now,
		log:  log.With().Str("provider", "alpaca").Logger(),
	}
}

func (p *AlpacaProvider) Quote(ctx context.Context, ticker string) (Quote, error) {
	ticker = symbol.Normalize(ticker)
	return callWithContext(ctx, func() (Quote, error) {
		return p.fetch(ticker)
	})
}

func (p *AlpacaProvider) fetch(ticker string) (Quote, error) {
	snapshot, err := p.client.GetSnapshot(ticker, marketdata.GetSnapshotRequest{Feed: p.feed})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: snapshot %s: %v", ErrDataUnavailable, ticker, err)
	}
	if snapshot == nil || snapshot.LatestTrade == nil || snapshot.DailyBar == nil {
		return Quote{}, fmt.Errorf("%w: incomplete snapshot for %s", ErrDataUnavailable, ticker)
	}

	end := p.now()
	bars, err := p.client.GetBars(ticker, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     end.AddDate(-1, 0, 0),
		End:       end,
		Feed:      p.feed,
	})
	if err != nil {
		return Quote{}, fmt.Errorf("%w: daily bars %s: %v", ErrDataUnavailable, ticker, err)
	}
	if len(bars) == 0 {
		return Quote{}, fmt.Errorf("%w: no daily bars for %s", ErrDataUnavailable, ticker)
	}

	closes := NewRingBuffer(fiftyDayWindow)
	volumes := NewRingBuffer(volumeWindow)
	highs := NewRingBuffer(yearOfBars)
	lows := NewRingBuffer(yearOfBars)
	for _, bar := range bars {
		closes.Add(bar.Close)
		volumes.Add(float64(bar.Volume))
		highs.Add(bar.High)
		lows.Add(bar.Low)
	}

	fiftyDay, err := closes.Mean()
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s fifty day average: %v", ErrDataUnavailable, ticker, err)
	}
	avgVolume, err := volumes.Mean()
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s average volume: %v", ErrDataUnavailable, ticker, err)
	}
	_, week52High, _ := highs.Range()
	week52Low, _, _ := lows.Range()

	rawCap, ok := p.caps[ticker]
	if !ok {
		return Quote{}, fmt.Errorf("%w: no market cap configured for %s", ErrDataUnavailable, ticker)
	}
	marketCap, err := ParseMarketCap(rawCap)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s market cap: %v", ErrDataUnavailable, ticker, err)
	}

	tradeTime := snapshot.LatestTrade.Timestamp.In(p.loc)
	q := Quote{
		Ticker:            ticker,
		LastPrice:         snapshot.LatestTrade.Price,
		DaysHigh:          snapshot.DailyBar.High,
		DaysLow:           snapshot.DailyBar.Low,
		FiftyDayAvg:       fiftyDay,
		Week52High:        week52High,
		Week52Low:         week52Low,
		Volume:            float64(snapshot.DailyBar.Volume),
		AvgDailyVolume10d: avgVolume,
		LastTradeTime:     TimeOfDay{Hour: tradeTime.Hour(), Minute: tradeTime.Minute()},
		MarketCap:         marketCap,
	}
	p.log.Debug().Str("symbol", ticker).Float64("last", q.LastPrice).Int("bars", len(bars)).Msg("quote fetched")
	return q, nil
}

// callWithContext runs a blocking SDK call and abandons it when ctx ends.
// The abandoned call still ends once the HTTP client times out.
func callWithContext[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrDataUnavailable, ctx.Err())
	case r := <-done:
		return r.value, r.err
	}
}

func parseFeed(feed string) marketdata.Feed {
	switch feed {
	case "iex":
		return marketdata.IEX
	case "sip":
		return marketdata.SIP
	default:
		return marketdata.IEX
	}
}
