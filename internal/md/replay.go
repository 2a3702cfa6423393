package md

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"fibtrader/internal/symbol"
)

// ReplayFile is the on-disk layout read by LoadReplay.
//
//	quotes:
//	  MSFT:
//	    - last_price: "100.5"
//	      ...
type ReplayFile struct {
	Quotes map[string][]RawQuote `yaml:"quotes"`
}

// Replay serves quotes from a fixed script. Each call advances the symbol's
// cursor; the last quote repeats once the script is exhausted.
type Replay struct {
	mu      sync.Mutex
	scripts map[string][]RawQuote
	cursor  map[string]int
}

func NewReplay(scripts map[string][]RawQuote) *Replay {
	r := &Replay{
		scripts: make(map[string][]RawQuote, len(scripts)),
		cursor:  make(map[string]int, len(scripts)),
	}
	for ticker, quotes := range scripts {
		r.scripts[symbol.Normalize(ticker)] = quotes
	}
	return r
}

func LoadReplay(path string) (*Replay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quotes file: %w", err)
	}
	var file ReplayFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse quotes file: %w", err)
	}
	return NewReplay(file.Quotes), nil
}

func (r *Replay) Quote(ctx context.Context, ticker string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, fmt.Errorf("%w: %v", ErrDataUnavailable, err)
	}
	key := symbol.Normalize(ticker)

	r.mu.Lock()
	script := r.scripts[key]
	if len(script) == 0 {
		r.mu.Unlock()
		return Quote{}, fmt.Errorf("%w: no quotes for %s", ErrDataUnavailable, key)
	}
	i := r.cursor[key]
	if i < len(script)-1 {
		r.cursor[key] = i + 1
	}
	raw := script[i]
	r.mu.Unlock()

	if raw.Ticker == "" {
		raw.Ticker = key
	}
	return Normalize(raw)
}
