package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"mirae/config"
)

func manualConfig() *config.TradingConfig {
	return &config.TradingConfig{
		StockCode:         "005930",
		StockName:         "Samsung Electronics",
		TradingMode:       config.ModeManual,
		MaxLoss:           10,
		StopLoss:          5,
		TakeProfit:        20,
		PyramidingCount:   2,
		EntryPoint:        75000,
		PyramidingEntries: []string{"0", "+5", "+10"},
		Positions:         []float64{40, 30, 30},
	}
}

func turtleConfig() *config.TradingConfig {
	return &config.TradingConfig{
		StockCode:         "000660",
		StockName:         "SK Hynix",
		TradingMode:       config.ModeTurtle,
		MaxLoss:           10,
		StopLoss:          2,
		TakeProfit:        3,
		PyramidingCount:   2,
		EntryPoint:        100,
		PyramidingEntries: []string{"0", "0.5", "1.0"},
		Positions:         []float64{50, 25, 25},
	}
}

func TestManualEntryThreshold(t *testing.T) {
	cfg := manualConfig()

	sig := Evaluate(cfg, Flat(), EvaluationContext{CurrentPrice: 75000, BasePrice: 75000})
	assert.Equal(t, ActionEnter, sig.Action)
	assert.Equal(t, ReasonNewEntry, sig.Reason)
	assert.Equal(t, 0, sig.TrancheIndex)

	// One tick below never triggers; the threshold is re-evaluated fresh
	// each cycle, not crossed
	sig = Evaluate(cfg, Flat(), EvaluationContext{CurrentPrice: 74999, BasePrice: 75000})
	assert.Equal(t, ActionNone, sig.Action)
}

func TestEntrySkippedWithoutEntryPoint(t *testing.T) {
	cfg := manualConfig()
	cfg.EntryPoint = 0

	sig := Evaluate(cfg, Flat(), EvaluationContext{CurrentPrice: 99999})
	assert.Equal(t, ActionNone, sig.Action)
}

func TestManualStopLoss(t *testing.T) {
	cfg := manualConfig()
	ctx := EvaluationContext{CurrentPrice: 94.9, AveragePrice: 100, BasePrice: 75000}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonStopLoss, sig.Reason)

	// Exactly at the boundary also exits (<= -stop_loss)
	ctx.CurrentPrice = 95
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonStopLoss, sig.Reason)
}

func TestManualTakeProfit(t *testing.T) {
	cfg := manualConfig()
	ctx := EvaluationContext{CurrentPrice: 120.1, AveragePrice: 100, BasePrice: 75000}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonTakeProfit, sig.Reason)
}

func TestManualHoldInsideBand(t *testing.T) {
	cfg := manualConfig()
	cfg.PyramidingEntries = nil // isolate the exit band from pyramiding
	ctx := EvaluationContext{CurrentPrice: 105, AveragePrice: 100, BasePrice: 75000}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)
}

func TestManualPyramidingOffsets(t *testing.T) {
	cfg := manualConfig()

	// Thresholds ladder off the configured entry point, not the average
	// price. +5% of 75000 = 78750.
	ctx := EvaluationContext{CurrentPrice: 78750, AveragePrice: 78000, BasePrice: cfg.EntryPoint}
	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionPyramid, sig.Action)
	assert.Equal(t, 1, sig.TrancheIndex)
	assert.Equal(t, "pyramiding_1 buy", sig.Reason)

	ctx.CurrentPrice = 78749
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)

	// Second pyramid wants the +10 threshold at index EntryCount = 2
	ctx.CurrentPrice = 82500
	sig = Evaluate(cfg, Holding(2), ctx)
	assert.Equal(t, ActionPyramid, sig.Action)
	assert.Equal(t, 2, sig.TrancheIndex)
}

func TestPyramidingBudgetExhausted(t *testing.T) {
	cfg := manualConfig() // pyramiding_count 2, so 3 entries total
	ctx := EvaluationContext{CurrentPrice: 999999, AveragePrice: 100000, BasePrice: cfg.EntryPoint}
	cfg.TakeProfit = 100000 // keep the exit rule out of the way

	sig := Evaluate(cfg, Holding(3), ctx)
	assert.Equal(t, ActionNone, sig.Action)
}

func TestPyramidingFailsClosed(t *testing.T) {
	ctx := EvaluationContext{CurrentPrice: 80000, AveragePrice: 76000, BasePrice: 75000}

	// Malformed threshold
	cfg := manualConfig()
	cfg.PyramidingEntries = []string{"0", "abc"}
	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)

	// Empty threshold slot
	cfg = manualConfig()
	cfg.PyramidingEntries = []string{"0", "  "}
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)

	// Fewer thresholds than the budget allows
	cfg = manualConfig()
	cfg.PyramidingEntries = []string{"0", "+5"}
	sig = Evaluate(cfg, Holding(2), ctx)
	assert.Equal(t, ActionNone, sig.Action)

	// No pyramiding configured at all
	cfg = manualConfig()
	cfg.PyramidingCount = 0
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)
}

func TestExitTakesPriorityOverPyramiding(t *testing.T) {
	cfg := manualConfig()
	cfg.TakeProfit = 5
	// Price satisfies both the +5 pyramid threshold and the take-profit
	ctx := EvaluationContext{CurrentPrice: 78750, AveragePrice: 75000, BasePrice: 75000}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonTakeProfit, sig.Reason)
}

func TestTurtleStopLoss(t *testing.T) {
	cfg := turtleConfig()
	// stop = avg - ATR*multiplier = 100 - 4*2 = 92
	ctx := EvaluationContext{CurrentPrice: 92, AveragePrice: 100, BasePrice: 100, ATR: 4, ATRValid: true}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonATRStopLoss, sig.Reason)

	ctx.CurrentPrice = 92.01
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.NotEqual(t, ActionExit, sig.Action)
}

func TestTurtleTakeProfit(t *testing.T) {
	cfg := turtleConfig()
	// target = avg + ATR*multiplier = 100 + 4*3 = 112
	ctx := EvaluationContext{CurrentPrice: 112, AveragePrice: 100, BasePrice: 100, ATR: 4, ATRValid: true}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionExit, sig.Action)
	assert.Equal(t, ReasonATRTakeProfit, sig.Reason)
}

func TestTurtlePyramidingThreshold(t *testing.T) {
	cfg := turtleConfig()
	// threshold = base + ATR*0.5 = 100 + 2 = 102
	ctx := EvaluationContext{CurrentPrice: 102, AveragePrice: 101, BasePrice: 100, ATR: 4, ATRValid: true}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionPyramid, sig.Action)
	assert.Equal(t, 1, sig.TrancheIndex)

	ctx.CurrentPrice = 101.99
	sig = Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)
}

func TestTurtleRequiresValidATR(t *testing.T) {
	cfg := turtleConfig()
	// Well past stop and pyramid levels, but ATR is unavailable: no
	// decision at all this cycle
	ctx := EvaluationContext{CurrentPrice: 50, AveragePrice: 100, BasePrice: 100, ATRValid: false}

	sig := Evaluate(cfg, Holding(1), ctx)
	assert.Equal(t, ActionNone, sig.Action)
}

func TestTrancheLabel(t *testing.T) {
	assert.Equal(t, "initial", TrancheLabel(0))
	assert.Equal(t, "pyramiding_1", TrancheLabel(1))
	assert.Equal(t, "pyramiding_3", TrancheLabel(3))
}
