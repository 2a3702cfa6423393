package md

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferSMA(t *testing.T) {
	buffer := NewRingBuffer(5)
	values := []float64{1, 2, 3, 4, 5}
	for _, v := range values {
		buffer.Add(v)
	}

	sma, err := buffer.SMA(3)
	require.NoError(t, err)
	assert.InDelta(t, (3.0+4.0+5.0)/3.0, sma, 1e-9)
}

func TestRingBufferSMAInsufficientData(t *testing.T) {
	buffer := NewRingBuffer(5)
	buffer.Add(1)

	_, err := buffer.SMA(3)
	assert.Error(t, err)
}

func TestRingBufferWrapsOldestFirst(t *testing.T) {
	buffer := NewRingBuffer(3)
	for _, v := range []float64{1, 2, 3, 4, 5} {
		buffer.Add(v)
	}
	assert.Equal(t, []float64{3, 4, 5}, buffer.Values())

	lo, hi, err := buffer.Range()
	require.NoError(t, err)
	assert.Equal(t, 3.0, lo)
	assert.Equal(t, 5.0, hi)

	mean, err := buffer.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, mean, 1e-9)
}

func TestRingBufferEmpty(t *testing.T) {
	buffer := NewRingBuffer(2)
	_, err := buffer.Mean()
	assert.Error(t, err)
	_, _, err = buffer.Range()
	assert.Error(t, err)
}
