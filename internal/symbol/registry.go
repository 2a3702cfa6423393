// Package symbol interns ticker identities so that every reference to the
// same ticker text resolves to the same *Symbol.
package symbol

import (
	"sort"
	"strings"
	"sync"
)

// Symbol is an interned, upper-cased ticker. Compare symbols by pointer.
type Symbol struct {
	Ticker string
}

func (s *Symbol) String() string {
	if s == nil {
		return ""
	}
	return s.Ticker
}

// Registry owns the interning table. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	symbols map[string]*Symbol
}

func NewRegistry() *Registry {
	return &Registry{symbols: make(map[string]*Symbol)}
}

// Normalize returns the canonical ticker text for raw input.
func Normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// Resolve returns the identity for ticker, creating it on first use.
// Empty tickers resolve to nil.
func (r *Registry) Resolve(ticker string) *Symbol {
	key := Normalize(ticker)
	if key == "" {
		return nil
	}

	r.mu.RLock()
	sym, ok := r.symbols[key]
	r.mu.RUnlock()
	if ok {
		return sym
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sym, ok := r.symbols[key]; ok {
		return sym
	}
	sym = &Symbol{Ticker: key}
	r.symbols[key] = sym
	return sym
}

// Lookup returns the identity for ticker without creating it.
func (r *Registry) Lookup(ticker string) (*Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sym, ok := r.symbols[Normalize(ticker)]
	return sym, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.symbols)
}

// Tickers lists every interned ticker in sorted order.
func (r *Registry) Tickers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.symbols))
	for k := range r.symbols {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
