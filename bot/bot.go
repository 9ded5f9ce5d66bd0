// Package bot runs one trading cycle over the active configs: exit checks
// first, then entry/pyramiding, with per-instrument fault isolation. The
// engine is invoked once per external trigger (cron); it never schedules
// itself.
package bot

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"mirae/config"
	"mirae/decision"
	"mirae/indicator"
	"mirae/ledger"
	"mirae/logger"
	"mirae/market"
	"mirae/notify"
	"mirae/risk"
)

// Session hours of the KRX cash market
const (
	sessionOpen  = "0900"
	sessionClose = "1530"
)

// Bot one-invocation trading engine. Constructed once per run with every
// collaborator explicit, so tests can swap in fake gateways.
type Bot struct {
	cfg      *config.AppConfig
	configs  []config.TradingConfig
	md       market.MarketData
	orders   market.OrderGateway
	ledger   *ledger.Ledger
	tradeLog *logger.TradeLogger
	notifier notify.Notifier

	loc   *time.Location
	nowFn func() time.Time

	cycleCount int
}

// New creates a bot for one invocation
func New(
	cfg *config.AppConfig,
	configs []config.TradingConfig,
	md market.MarketData,
	orders market.OrderGateway,
	lg *ledger.Ledger,
	tradeLog *logger.TradeLogger,
	notifier notify.Notifier,
) *Bot {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		loc = time.FixedZone("KST", 9*60*60)
	}
	return &Bot{
		cfg:      cfg,
		configs:  configs,
		md:       md,
		orders:   orders,
		ledger:   lg,
		tradeLog: tradeLog,
		notifier: notifier,
		loc:      loc,
		nowFn:    time.Now,
	}
}

// isMarketOpen KRX cash session: weekdays 09:00-15:30 KST
func (b *Bot) isMarketOpen() bool {
	now := b.nowFn().In(b.loc)
	if now.Weekday() == time.Saturday || now.Weekday() == time.Sunday {
		return false
	}
	hhmm := now.Format("1504")
	return hhmm >= sessionOpen && hhmm <= sessionClose
}

// RunCycle evaluates every active config once. Cycle-level precondition
// failures (closed market, empty account) exit early before touching any
// instrument; a single instrument's failure never aborts the rest.
func (b *Bot) RunCycle() error {
	b.cycleCount++
	log.Printf("\n%s", strings.Repeat("=", 70))
	log.Printf("⏰ %s - Trading cycle #%d (%s)", b.nowFn().Format("2006-01-02 15:04:05"), b.cycleCount, b.cfg.Mode)
	log.Printf("%s", strings.Repeat("=", 70))

	if b.cfg.SessionGate() && !b.isMarketOpen() {
		log.Printf("🌙 Market closed, nothing to do")
		return nil
	}

	// Account snapshot, fetched once and threaded through the cycle
	equity, err := b.md.GetBalance()
	if err != nil {
		return fmt.Errorf("failed to fetch account balance: %w", err)
	}
	if equity <= 0 {
		log.Printf("⚠️  Account equity is %.0f, aborting cycle", equity)
		return nil
	}

	positions, err := b.md.GetPositions()
	if err != nil {
		return fmt.Errorf("failed to fetch held positions: %w", err)
	}

	log.Printf("📊 Equity: %.0f | Held instruments: %d | Active configs: %d",
		equity, len(positions), len(b.configs))

	for i := range b.configs {
		tc := &b.configs[i]

		// Courtesy delay so a long config list doesn't hammer the
		// brokerage rate limits
		time.Sleep(b.cfg.InstrumentDelay())

		if err := b.safeProcess(tc, equity, positions); err != nil {
			log.Printf("❌ [%s] Instrument evaluation failed: %v", tc.StockName, err)
			b.notifier.ErrorAlert("instrument evaluation", tc.StockCode, tc.StockName, err.Error())
		}
	}

	b.maybeSendDailySummary()

	log.Printf("✅ Trading cycle complete\n")
	return nil
}

// safeProcess is the per-instrument fault boundary: errors and panics
// are contained here so the remaining instruments still run
func (b *Bot) safeProcess(tc *config.TradingConfig, equity float64, positions []market.HeldPosition) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.processConfig(tc, equity, positions)
}

// processConfig evaluates one instrument and executes whatever the
// evaluator triggers
func (b *Bot) processConfig(tc *config.TradingConfig, equity float64, positions []market.HeldPosition) error {
	log.Printf("\n[%s] Evaluation start", tc.StockName)

	rec, err := b.ledger.Record(tc.StockCode)
	if err != nil {
		return err
	}
	state := decision.Flat()
	if rec != nil {
		state = decision.Holding(rec.EntryCount)
	}

	currentPrice, err := b.md.GetCurrentPrice(tc.StockCode)
	if err != nil {
		return fmt.Errorf("failed to fetch current price: %w", err)
	}

	ctx := decision.EvaluationContext{
		CurrentPrice: currentPrice,
		BasePrice:    tc.EntryPoint,
	}
	if rec != nil {
		ctx.AveragePrice = rec.AveragePrice
	}

	// ATR only matters to turtle configs; a failed fetch just leaves
	// ATRValid false and the turtle rules make no decision this cycle
	if tc.TradingMode == config.ModeTurtle {
		candles, err := b.md.GetOHLC(tc.StockCode, indicator.DefaultATRPeriod+10)
		if err != nil {
			log.Printf("⚠️  [%s] OHLC fetch failed, ATR unavailable: %v", tc.StockName, err)
		} else if atr, err := indicator.ATR(candles, indicator.DefaultATRPeriod); err != nil {
			log.Printf("⚠️  [%s] ATR unavailable: %v", tc.StockName, err)
		} else {
			ctx.ATR = atr
			ctx.ATRValid = true
		}
	}

	log.Printf("[%s] State: %s | Price: %.2f | Entry point: %.2f",
		tc.StockName, state, currentPrice, tc.EntryPoint)

	signal := decision.Evaluate(tc, state, ctx)
	switch signal.Action {
	case decision.ActionExit:
		return b.executeSell(tc, rec, positions, signal.Reason)
	case decision.ActionEnter, decision.ActionPyramid:
		return b.executeBuy(tc, state, currentPrice, equity, signal)
	default:
		return nil
	}
}

// executeBuy sizes the next tranche and places a market buy
func (b *Bot) executeBuy(tc *config.TradingConfig, state decision.PositionState, currentPrice, equity float64, signal decision.Signal) error {
	total, err := risk.PositionAmount(equity, tc)
	if err != nil {
		// Invalid risk parameters: skip the rule, the instrument stays
		// untouched until the config is fixed
		log.Printf("⚠️  [%s] Skipping buy: %v", tc.StockName, err)
		return nil
	}

	amount := risk.CurrentEntryAmount(tc, total, state.EntryCount)
	if amount <= 0 {
		log.Printf("[%s] Pyramiding budget exhausted, no further buys", tc.StockName)
		return nil
	}

	quantity := int(math.Floor(amount / currentPrice))
	if quantity <= 0 {
		log.Printf("[%s] Tranche amount %.0f buys zero shares at %.2f, skipping", tc.StockName, amount, currentPrice)
		return nil
	}

	if err := b.orders.MarketBuy(tc.StockCode, quantity); err != nil {
		return fmt.Errorf("market buy failed: %w", err)
	}

	tranche := decision.TrancheLabel(signal.TrancheIndex)
	if err := b.ledger.RecordEntry(tc.StockCode, tc.StockName, currentPrice, quantity, tranche); err != nil {
		return err
	}

	rec, err := b.ledger.Record(tc.StockCode)
	if err != nil {
		return err
	}

	trade := &logger.TradeRecord{
		Timestamp:       b.nowFn(),
		StockCode:       tc.StockCode,
		StockName:       tc.StockName,
		Action:          logger.ActionBuy,
		Price:           currentPrice,
		Quantity:        quantity,
		Amount:          amount,
		Tranche:         tranche,
		Reason:          signal.Reason,
		AvgPrice:        rec.AveragePrice,
		TotalQuantity:   rec.TotalQuantity,
		TradingMode:     tc.TradingMode,
		StopLoss:        tc.StopLoss,
		TakeProfit:      tc.TakeProfit,
		PyramidingCount: tc.PyramidingCount,
		EntryPoint:      tc.EntryPoint,
	}
	if err := b.tradeLog.LogTrade(trade); err != nil {
		log.Printf("⚠️  [%s] Failed to log trade: %v", tc.StockName, err)
	}
	if err := b.tradeLog.UpdateSummary(tc.StockCode); err != nil {
		log.Printf("⚠️  [%s] Failed to update summary: %v", tc.StockName, err)
	}

	b.notifier.TradeAlert(trade, 0)

	log.Printf("✅ [%s] Buy executed - %d shares @ %.2f (%s, avg: %.2f, total: %d)",
		tc.StockName, quantity, currentPrice, tranche, rec.AveragePrice, rec.TotalQuantity)
	return nil
}

// executeSell places a full-quantity market sell and resets the ledger
func (b *Bot) executeSell(tc *config.TradingConfig, rec *ledger.Record, positions []market.HeldPosition, reason string) error {
	// Prefer the brokerage's view of held quantity; the ledger total is
	// the fallback when the account snapshot lacks the instrument
	quantity := 0
	if pos := market.FindPosition(positions, tc.StockCode); pos != nil {
		quantity = pos.Quantity
	} else if rec != nil {
		quantity = rec.TotalQuantity
	}
	if quantity <= 0 {
		log.Printf("⚠️  [%s] Exit triggered but no quantity to sell", tc.StockName)
		return nil
	}

	if err := b.orders.MarketSell(tc.StockCode, quantity); err != nil {
		return fmt.Errorf("market sell failed: %w", err)
	}

	// Current price after the fill is the closest proxy for the fill
	// price without order-detail queries
	sellPrice, err := b.md.GetCurrentPrice(tc.StockCode)
	if err != nil && rec != nil {
		sellPrice = rec.AveragePrice
	}
	sellAmount := sellPrice * float64(quantity)

	avgPrice := 0.0
	holdingDays := 0.0
	if rec != nil {
		avgPrice = rec.AveragePrice
		if len(rec.Entries) > 0 {
			holdingDays = b.nowFn().Sub(rec.Entries[0].Timestamp).Hours() / 24
		}
	}
	profitLoss := 0.0
	profitLossPercent := 0.0
	if avgPrice > 0 {
		cost := avgPrice * float64(quantity)
		profitLoss = sellAmount - cost
		profitLossPercent = profitLoss / cost * 100
	}

	if err := b.ledger.Clear(tc.StockCode); err != nil {
		return err
	}

	trade := &logger.TradeRecord{
		Timestamp:         b.nowFn(),
		StockCode:         tc.StockCode,
		StockName:         tc.StockName,
		Action:            logger.ActionSell,
		Price:             sellPrice,
		Quantity:          quantity,
		Amount:            sellAmount,
		Tranche:           "exit",
		Reason:            reason,
		AvgPrice:          avgPrice,
		TotalQuantity:     0, // flat after a full exit
		ProfitLoss:        profitLoss,
		ProfitLossPercent: profitLossPercent,
		TradingMode:       tc.TradingMode,
		StopLoss:          tc.StopLoss,
		TakeProfit:        tc.TakeProfit,
		PyramidingCount:   tc.PyramidingCount,
		EntryPoint:        tc.EntryPoint,
	}
	if err := b.tradeLog.LogTrade(trade); err != nil {
		log.Printf("⚠️  [%s] Failed to log trade: %v", tc.StockName, err)
	}
	if err := b.tradeLog.UpdateSummary(tc.StockCode); err != nil {
		log.Printf("⚠️  [%s] Failed to update summary: %v", tc.StockName, err)
	}

	b.notifier.TradeAlert(trade, holdingDays)

	log.Printf("✅ [%s] Sell executed - %d shares @ %.2f (%s, P&L: %+.0f / %+.2f%%)",
		tc.StockName, quantity, sellPrice, reason, profitLoss, profitLossPercent)
	return nil
}

// maybeSendDailySummary fires the close-of-session roll-up during the
// closing minute
func (b *Bot) maybeSendDailySummary() {
	now := b.nowFn().In(b.loc)
	if now.Format("1504") != sessionClose {
		return
	}
	stats, err := b.tradeLog.StatsForDay(now, b.loc)
	if err != nil {
		log.Printf("⚠️  Failed to compute daily stats: %v", err)
		return
	}
	b.notifier.DailySummary(b.cfg.Mode, stats)
}
