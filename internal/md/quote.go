// Package md holds market data: the normalized quote snapshot consumed by
// strategies and the providers that produce it.
package md

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"fibtrader/internal/symbol"
)

var (
	// ErrDataUnavailable marks a quote that could not be fetched or parsed.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInvalidSymbol marks a ticker that fails validation.
	ErrInvalidSymbol = errors.New("invalid symbol")
)

// TimeOfDay is a wall clock reading without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Quote is an immutable snapshot of one symbol for one decision cycle.
type Quote struct {
	Ticker            string
	LastPrice         float64
	DaysHigh          float64
	DaysLow           float64
	FiftyDayAvg       float64
	Week52High        float64
	Week52Low         float64
	Volume            float64
	AvgDailyVolume10d float64
	LastTradeTime     TimeOfDay
	MarketCap         float64
}

// RawQuote is a quote as delivered by a text based feed. Every field except
// MarketCap must parse as a real number; MarketCap carries a magnitude suffix.
type RawQuote struct {
	Ticker            string `yaml:"ticker" json:"ticker"`
	LastPrice         string `yaml:"last_price" json:"last_price"`
	DaysHigh          string `yaml:"days_high" json:"days_high"`
	DaysLow           string `yaml:"days_low" json:"days_low"`
	FiftyDayAvg       string `yaml:"fifty_day_avg" json:"fifty_day_avg"`
	Week52High        string `yaml:"week52_high" json:"week52_high"`
	Week52Low         string `yaml:"week52_low" json:"week52_low"`
	Volume            string `yaml:"volume" json:"volume"`
	AvgDailyVolume10d string `yaml:"avg_daily_volume_10d" json:"avg_daily_volume_10d"`
	LastTradeTime     string `yaml:"last_trade_time" json:"last_trade_time"`
	MarketCap         string `yaml:"market_cap" json:"market_cap"`
}

// Provider fetches quote snapshots. Implementations must honor ctx.
type Provider interface {
	Quote(ctx context.Context, ticker string) (Quote, error)
}

// Normalize converts a raw quote into a Quote. Failures wrap ErrDataUnavailable.
func Normalize(raw RawQuote) (Quote, error) {
	q := Quote{Ticker: symbol.Normalize(raw.Ticker)}
	fields := []struct {
		name string
		in   string
		out  *float64
	}{
		{"last_price", raw.LastPrice, &q.LastPrice},
		{"days_high", raw.DaysHigh, &q.DaysHigh},
		{"days_low", raw.DaysLow, &q.DaysLow},
		{"fifty_day_avg", raw.FiftyDayAvg, &q.FiftyDayAvg},
		{"week52_high", raw.Week52High, &q.Week52High},
		{"week52_low", raw.Week52Low, &q.Week52Low},
		{"volume", raw.Volume, &q.Volume},
		{"avg_daily_volume_10d", raw.AvgDailyVolume10d, &q.AvgDailyVolume10d},
	}
	for _, f := range fields {
		v, err := parseNumber(f.in)
		if err != nil {
			return Quote{}, fmt.Errorf("%w: %s %s: %v", ErrDataUnavailable, q.Ticker, f.name, err)
		}
		*f.out = v
	}

	tod, err := ParseTimeOfDay(raw.LastTradeTime)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s last_trade_time: %v", ErrDataUnavailable, q.Ticker, err)
	}
	q.LastTradeTime = tod

	marketCap, err := ParseMarketCap(raw.MarketCap)
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %s market_cap: %v", ErrDataUnavailable, q.Ticker, err)
	}
	q.MarketCap = marketCap
	if err := q.Check(); err != nil {
		return Quote{}, err
	}
	return q, nil
}

// Check rejects quotes carrying non-finite or negative figures.
func (q Quote) Check() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"last_price", q.LastPrice},
		{"days_high", q.DaysHigh},
		{"days_low", q.DaysLow},
		{"fifty_day_avg", q.FiftyDayAvg},
		{"week52_high", q.Week52High},
		{"week52_low", q.Week52Low},
		{"volume", q.Volume},
		{"avg_daily_volume_10d", q.AvgDailyVolume10d},
		{"market_cap", q.MarketCap},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%w: %s %s is %v", ErrDataUnavailable, q.Ticker, f.name, f.value)
		}
	}
	return nil
}

func parseNumber(value string) (float64, error) {
	value = strings.ReplaceAll(strings.Trim(strings.TrimSpace(value), `"`), ",", "")
	if value == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", value)
	}
	return v, nil
}

var magnitudes = map[byte]decimal.Decimal{
	'T': decimal.New(1, 12),
	'B': decimal.New(1, 9),
	'M': decimal.New(1, 6),
}

// ParseMarketCap normalizes a magnitude-suffixed amount such as "1.2B".
// Plain numbers are accepted unchanged.
func ParseMarketCap(value string) (float64, error) {
	value = strings.ToUpper(strings.Trim(strings.TrimSpace(value), `"`))
	if value == "" {
		return 0, errors.New("empty market cap")
	}

	multiplier := decimal.NewFromInt(1)
	if last := value[len(value)-1]; !unicode.IsDigit(rune(last)) && last != '.' {
		m, ok := magnitudes[last]
		if !ok {
			return 0, fmt.Errorf("unknown magnitude suffix %q", string(last))
		}
		multiplier = m
		value = value[:len(value)-1]
	}

	amount, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return amount.Mul(multiplier).InexactFloat64(), nil
}

var timeLayouts = []string{"15:04", "3:04pm", "3:04PM", "3:04 pm", "3:04 PM", "15:04:05"}

// ParseTimeOfDay accepts 24-hour and 12-hour clock readings.
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("unrecognized time %q", value)
}

// Validate reports whether ticker names a tradable symbol: it must contain a
// letter or digit and the provider must return a finite, positive last price.
func Validate(ctx context.Context, provider Provider, ticker string) error {
	trimmed := strings.TrimSpace(ticker)
	if !strings.ContainsFunc(trimmed, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, ticker)
	}

	q, err := provider.Quote(ctx, trimmed)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidSymbol, trimmed, err)
	}
	if err := q.Check(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}
	if q.LastPrice <= 0 {
		return fmt.Errorf("%w: %s has no last trade price", ErrInvalidSymbol, trimmed)
	}
	return nil
}
