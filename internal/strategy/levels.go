package strategy

import (
	"errors"

	"fibtrader/internal/md"
)

// ErrDegenerateRange is returned when high equals low and no level can act
// as support or resistance.
var ErrDegenerateRange = errors.New("degenerate range")

const (
	tightRangeFactor    = 0.007
	dailyThresholdRatio = 0.0009
	extendedDivisor     = 50
)

// Ratios are the retracement fractions between low and high, ascending.
var Ratios = [6]float64{0, 0.236, 0.382, 0.5, 0.618, 1}

// Levels is the output of the level calculator for one quote.
type Levels struct {
	Low       float64
	High      float64
	Threshold float64
	// Extended is set when the day's range was too tight and the 50-day
	// average and 52-week extreme were used instead.
	Extended bool
	Prices   [6]float64
}

// Degenerate reports a zero-width range.
func (l Levels) Degenerate() bool {
	return l.High == l.Low
}

// ComputeLevels derives the (low, high, threshold) triple and the six
// retracement prices from a quote.
func ComputeLevels(q md.Quote) Levels {
	var lv Levels
	if q.DaysHigh-q.DaysLow <= q.LastPrice*tightRangeFactor {
		lv.Extended = true
		if q.LastPrice > q.FiftyDayAvg {
			lv.Low, lv.High = q.FiftyDayAvg, q.Week52High
		} else {
			lv.Low, lv.High = q.Week52Low, q.FiftyDayAvg
		}
		lv.Threshold = (lv.High - lv.Low) / extendedDivisor
	} else {
		lv.Low, lv.High = q.DaysLow, q.DaysHigh
		lv.Threshold = q.LastPrice * dailyThresholdRatio
	}
	lv.Prices = Retracements(lv.Low, lv.High)
	if lv.Degenerate() {
		lv.Threshold = 0
	}
	return lv
}

// Retracements returns low, the four interior ratios and high, in order.
func Retracements(low, high float64) [6]float64 {
	diff := high - low
	var out [6]float64
	for i, ratio := range Ratios {
		out[i] = low + diff*ratio
	}
	out[0] = low
	out[len(out)-1] = high
	return out
}
