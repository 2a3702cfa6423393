package strategy

import (
	"fmt"
	"sort"
)

// DefaultName is the strategy used when none is configured.
const DefaultName = "fib-retracement"

type Factory func() Strategy

var registry = map[string]Factory{
	"fib-retracement": func() Strategy { return NewFibRetracement() },
	"sma":             func() Strategy { return SMA{} },
}

// New builds the strategy registered under name.
func New(name string) (Strategy, error) {
	if name == "" {
		name = DefaultName
	}
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return factory(), nil
}

// Names lists registered strategy ids.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
