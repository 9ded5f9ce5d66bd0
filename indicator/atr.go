package indicator

import (
	"errors"
	"math"

	"mirae/market"
)

// DefaultATRPeriod standard 14-period ATR used by the turtle rules
const DefaultATRPeriod = 14

// ErrInsufficientData not enough history to evaluate the indicator.
// Callers treat this as "cannot decide this cycle", not as a failure.
var ErrInsufficientData = errors.New("insufficient OHLC history")

// ATR computes the Average True Range over the trailing period bars,
// evaluated at the most recent candle. True Range per bar is
// max(high-low, |high-prevClose|, |low-prevClose|); ATR is its simple
// moving average. Requires at least period+1 candles so every bar in the
// window has a previous close.
func ATR(candles []market.Candle, period int) (float64, error) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) < period+1 {
		return 0, ErrInsufficientData
	}

	sum := 0.0
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := candles[i].High - candles[i].Low
		tr = math.Max(tr, math.Abs(candles[i].High-prevClose))
		tr = math.Max(tr, math.Abs(candles[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(period), nil
}
