package decision

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"mirae/config"
)

// Action what the evaluator wants the orchestrator to do this cycle
type Action int

const (
	ActionNone    Action = iota // no trigger, re-evaluate next cycle
	ActionEnter                 // FLAT -> HOLDING(1)
	ActionPyramid               // HOLDING(k) -> HOLDING(k+1)
	ActionExit                  // HOLDING(k) -> FLAT, full quantity
)

func (a Action) String() string {
	switch a {
	case ActionEnter:
		return "enter"
	case ActionPyramid:
		return "pyramid"
	case ActionExit:
		return "exit"
	default:
		return "none"
	}
}

// Exit and entry reasons recorded in the trade log and alerts
const (
	ReasonStopLoss      = "stop-loss"
	ReasonTakeProfit    = "take-profit"
	ReasonATRStopLoss   = "ATR stop-loss"
	ReasonATRTakeProfit = "ATR take-profit"
	ReasonNewEntry      = "new entry"
)

// Signal one evaluation outcome
type Signal struct {
	Action       Action
	Reason       string
	TrancheIndex int // 0-based tranche the buy belongs to (Enter/Pyramid only)
}

// PositionState position state for one instrument, derived once per cycle
// from the ledger: FLAT when no ledger record exists, HOLDING(k) when a
// record with k entries exists
type PositionState struct {
	Holding    bool
	EntryCount int
}

// Flat no position held
func Flat() PositionState { return PositionState{} }

// Holding k entries made so far
func Holding(entryCount int) PositionState {
	return PositionState{Holding: true, EntryCount: entryCount}
}

func (s PositionState) String() string {
	if !s.Holding {
		return "FLAT"
	}
	return fmt.Sprintf("HOLDING(%d)", s.EntryCount)
}

// EvaluationContext market view for one instrument in one cycle. Built
// once by the orchestrator and threaded through every check so a single
// cycle never sees two different prices for the same instrument.
type EvaluationContext struct {
	CurrentPrice float64
	BasePrice    float64 // the config's entry_point; pyramiding thresholds ladder off this anchor, never the latest fill
	AveragePrice float64 // ledger-derived cost basis (0 when flat)
	ATR          float64
	ATRValid     bool // false when history was too short or the feed errored
}

// TrancheLabel names a buy by its 0-based tranche index
func TrancheLabel(index int) string {
	if index == 0 {
		return "initial"
	}
	return fmt.Sprintf("pyramiding_%d", index)
}

// rules one rule system; selected once per config by its trading_mode
type rules interface {
	// checkExit returns an exit reason, or "" for no exit this cycle
	checkExit(cfg *config.TradingConfig, ctx EvaluationContext) string
	// checkPyramid reports whether the tranche threshold entryStr is met
	checkPyramid(cfg *config.TradingConfig, ctx EvaluationContext, entryStr string) (bool, error)
}

func rulesFor(mode string) rules {
	if mode == config.ModeTurtle {
		return turtleRules{}
	}
	return manualRules{}
}

// Evaluate runs one instrument through the state machine. Exit conditions
// take priority over pyramiding for an instrument already holding. Every
// undecidable condition (unavailable ATR, malformed threshold, exhausted
// budget) fails closed to ActionNone.
func Evaluate(cfg *config.TradingConfig, state PositionState, ctx EvaluationContext) Signal {
	r := rulesFor(cfg.TradingMode)

	if state.Holding {
		if reason := r.checkExit(cfg, ctx); reason != "" {
			log.Printf("📉 [%s] Exit condition met (%s) - price: %.2f, avg: %.2f",
				cfg.StockName, reason, ctx.CurrentPrice, ctx.AveragePrice)
			return Signal{Action: ActionExit, Reason: reason}
		}
		return checkPyramiding(cfg, state, ctx, r)
	}

	return checkEntry(cfg, ctx)
}

// checkEntry FLAT -> HOLDING(1). A hard threshold re-evaluated fresh each
// cycle, not a crossing detector.
func checkEntry(cfg *config.TradingConfig, ctx EvaluationContext) Signal {
	if cfg.EntryPoint <= 0 {
		return Signal{Action: ActionNone}
	}
	if ctx.CurrentPrice >= cfg.EntryPoint {
		log.Printf("🟢 [%s] Entry condition met - price: %.2f >= entry point: %.2f",
			cfg.StockName, ctx.CurrentPrice, cfg.EntryPoint)
		return Signal{Action: ActionEnter, Reason: ReasonNewEntry, TrancheIndex: 0}
	}
	return Signal{Action: ActionNone}
}

// checkPyramiding HOLDING(k) -> HOLDING(k+1). The next tranche index is
// the current entry count (the initial buy consumed index 0).
func checkPyramiding(cfg *config.TradingConfig, state PositionState, ctx EvaluationContext, r rules) Signal {
	none := Signal{Action: ActionNone}

	if cfg.PyramidingCount <= 0 || len(cfg.PyramidingEntries) == 0 {
		return none
	}
	if state.EntryCount > cfg.PyramidingCount {
		log.Printf("[%s] Pyramiding budget exhausted (%d > %d)",
			cfg.StockName, state.EntryCount, cfg.PyramidingCount)
		return none
	}

	nextIndex := state.EntryCount
	if nextIndex >= len(cfg.PyramidingEntries) {
		log.Printf("[%s] No pyramiding entry configured for tranche %d", cfg.StockName, nextIndex)
		return none
	}

	entryStr := strings.TrimSpace(cfg.PyramidingEntries[nextIndex])
	if entryStr == "" {
		return none
	}

	ok, err := r.checkPyramid(cfg, ctx, entryStr)
	if err != nil {
		log.Printf("⚠️  [%s] Skipping pyramiding check: %v", cfg.StockName, err)
		return none
	}
	if !ok {
		return none
	}

	log.Printf("🔺 [%s] Pyramiding condition met - tranche %d buy", cfg.StockName, nextIndex+1)
	return Signal{
		Action:       ActionPyramid,
		Reason:       fmt.Sprintf("%s buy", TrancheLabel(nextIndex)),
		TrancheIndex: nextIndex,
	}
}

// manualRules fixed percentage thresholds
type manualRules struct{}

func (manualRules) checkExit(cfg *config.TradingConfig, ctx EvaluationContext) string {
	if ctx.AveragePrice <= 0 {
		return ""
	}
	profitPercent := (ctx.CurrentPrice - ctx.AveragePrice) / ctx.AveragePrice * 100
	if profitPercent <= -cfg.StopLoss {
		return ReasonStopLoss
	}
	if profitPercent >= cfg.TakeProfit {
		return ReasonTakeProfit
	}
	return ""
}

func (manualRules) checkPyramid(cfg *config.TradingConfig, ctx EvaluationContext, entryStr string) (bool, error) {
	// Threshold is a percent offset from the base entry price. A leading
	// "+" is allowed ("+5" and "5" both mean +5%).
	thresholdPercent, err := strconv.ParseFloat(strings.TrimPrefix(entryStr, "+"), 64)
	if err != nil {
		return false, fmt.Errorf("bad pyramiding entry %q: %w", entryStr, err)
	}
	if ctx.BasePrice <= 0 {
		return false, fmt.Errorf("no base price for pyramiding")
	}
	changePercent := (ctx.CurrentPrice - ctx.BasePrice) / ctx.BasePrice * 100
	return changePercent >= thresholdPercent, nil
}

// turtleRules ATR-multiple thresholds. Every check requires a valid ATR;
// when history is too short the cycle makes no decision at all.
type turtleRules struct{}

func (turtleRules) checkExit(cfg *config.TradingConfig, ctx EvaluationContext) string {
	if !ctx.ATRValid || ctx.AveragePrice <= 0 {
		return ""
	}
	stopPrice := ctx.AveragePrice - ctx.ATR*cfg.StopLoss
	targetPrice := ctx.AveragePrice + ctx.ATR*cfg.TakeProfit
	if ctx.CurrentPrice <= stopPrice {
		return ReasonATRStopLoss
	}
	if ctx.CurrentPrice >= targetPrice {
		return ReasonATRTakeProfit
	}
	return ""
}

func (turtleRules) checkPyramid(cfg *config.TradingConfig, ctx EvaluationContext, entryStr string) (bool, error) {
	if !ctx.ATRValid {
		return false, fmt.Errorf("ATR unavailable")
	}
	multiplier, err := strconv.ParseFloat(entryStr, 64)
	if err != nil {
		return false, fmt.Errorf("bad pyramiding entry %q: %w", entryStr, err)
	}
	if ctx.BasePrice <= 0 {
		return false, fmt.Errorf("no base price for pyramiding")
	}
	thresholdPrice := ctx.BasePrice + ctx.ATR*multiplier
	return ctx.CurrentPrice >= thresholdPrice, nil
}
