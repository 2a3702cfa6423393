package symbol

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIsCaseInsensitive(t *testing.T) {
	reg := NewRegistry()

	lower := reg.Resolve("msft")
	upper := reg.Resolve("MSFT")
	padded := reg.Resolve("  Msft ")

	require.NotNil(t, lower)
	assert.Same(t, lower, upper)
	assert.Same(t, lower, padded)
	assert.Equal(t, "MSFT", lower.Ticker)
	assert.Equal(t, 1, reg.Len())
}

func TestResolveEmptyTicker(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, reg.Resolve("   "))
	assert.Equal(t, 0, reg.Len())
}

func TestLookupDoesNotCreate(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Lookup("AAPL")
	assert.False(t, ok)

	created := reg.Resolve("aapl")
	found, ok := reg.Lookup("AAPL")
	require.True(t, ok)
	assert.Same(t, created, found)
}

func TestRegistriesAreIndependent(t *testing.T) {
	a := NewRegistry().Resolve("IBM")
	b := NewRegistry().Resolve("IBM")
	assert.NotSame(t, a, b)
}

func TestResolveConcurrent(t *testing.T) {
	reg := NewRegistry()
	results := make([]*Symbol, 32)

	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = reg.Resolve("tsla")
		}(i)
	}
	wg.Wait()

	for _, sym := range results {
		assert.Same(t, results[0], sym)
	}
	assert.Equal(t, []string{"TSLA"}, reg.Tickers())
}
