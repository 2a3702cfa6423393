package md

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// RingBuffer keeps the most recent size values of a series.
type RingBuffer struct {
	values []float64
	size   int
	index  int
	filled bool
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		values: make([]float64, size),
		size:   size,
	}
}

func (r *RingBuffer) Add(value float64) {
	r.values[r.index] = value
	r.index = (r.index + 1) % r.size
	if r.index == 0 {
		r.filled = true
	}
}

func (r *RingBuffer) Len() int {
	if r.filled {
		return r.size
	}
	return r.index
}

// Values returns the buffered series oldest first.
func (r *RingBuffer) Values() []float64 {
	length := r.Len()
	result := make([]float64, 0, length)
	if length == 0 {
		return result
	}
	if r.filled {
		result = append(result, r.values[r.index:]...)
	}
	result = append(result, r.values[:r.index]...)
	return result
}

// SMA averages the last window values.
func (r *RingBuffer) SMA(window int) (float64, error) {
	if window <= 0 {
		return 0, errors.New("window must be positive")
	}
	values := r.Values()
	if len(values) < window {
		return 0, errors.New("not enough data for SMA")
	}
	return stat.Mean(values[len(values)-window:], nil), nil
}

// Mean averages whatever is buffered.
func (r *RingBuffer) Mean() (float64, error) {
	values := r.Values()
	if len(values) == 0 {
		return 0, errors.New("empty buffer")
	}
	return stat.Mean(values, nil), nil
}

// Range returns the minimum and maximum buffered values.
func (r *RingBuffer) Range() (float64, float64, error) {
	values := r.Values()
	if len(values) == 0 {
		return 0, 0, errors.New("empty buffer")
	}
	return floats.Min(values), floats.Max(values), nil
}
