package md

import (
	"context"
	"sync"

	"fibtrader/internal/symbol"
)

// Cache memoizes quotes for the duration of one cycle so every consumer in
// the cycle sees the same snapshot of a symbol. Quotes failing Check are
// never cached.
type Cache struct {
	mu       sync.Mutex
	provider Provider
	quotes   map[string]Quote
}

func NewCache(provider Provider) *Cache {
	return &Cache{provider: provider, quotes: map[string]Quote{}}
}

func (c *Cache) Quote(ctx context.Context, ticker string) (Quote, error) {
	key := symbol.Normalize(ticker)
	c.mu.Lock()
	q, ok := c.quotes[key]
	c.mu.Unlock()
	if ok {
		return q, nil
	}

	q, err := c.provider.Quote(ctx, key)
	if err != nil {
		return Quote{}, err
	}
	if err := q.Check(); err != nil {
		return Quote{}, err
	}
	c.mu.Lock()
	c.quotes[key] = q
	c.mu.Unlock()
	return q, nil
}

// Reset drops every cached quote.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes = map[string]Quote{}
}

// LastPrices returns the last price of every cached quote.
func (c *Cache) LastPrices() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.quotes))
	for k, q := range c.quotes {
		out[k] = q.LastPrice
	}
	return out
}
