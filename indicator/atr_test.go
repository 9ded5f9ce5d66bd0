package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirae/market"
)

func flatCandles(n int, high, low, close float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		candles[i] = market.Candle{High: high, Low: low, Close: close}
	}
	return candles
}

func TestATRInsufficientHistory(t *testing.T) {
	// period+1 candles are required; one fewer is not enough
	_, err := ATR(flatCandles(14, 105, 95, 100), 14)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ATR(nil, 14)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestATRConstantRange(t *testing.T) {
	// Every bar spans high-low = 10 and closes inside the range, so every
	// true range is 10 and so is their average
	atr, err := ATR(flatCandles(15, 105, 95, 100), 14)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, atr, 1e-9)
}

func TestATRUsesGapFromPreviousClose(t *testing.T) {
	// A gap up makes |high - prevClose| the dominant term
	candles := []market.Candle{
		{High: 102, Low: 98, Close: 100},
		{High: 120, Low: 115, Close: 118}, // TR = max(5, 20, 15) = 20
		{High: 122, Low: 117, Close: 120}, // TR = max(5, 4, 1) = 5
	}
	atr, err := ATR(candles, 2)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, atr, 1e-9)
}

func TestATRUsesTrailingWindow(t *testing.T) {
	// Old volatile bars outside the trailing window must not bleed in
	candles := append(flatCandles(10, 300, 100, 200), flatCandles(15, 105, 95, 100)...)
	// First in-window bar gaps down from close 100 to the same range, so
	// every windowed TR is still 10
	atr, err := ATR(candles, 14)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, atr, 1e-9)
}

func TestATRDefaultPeriod(t *testing.T) {
	atr, err := ATR(flatCandles(15, 101, 99, 100), 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, atr, 1e-9)
}
