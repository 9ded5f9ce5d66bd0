package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLogger(t *testing.T) *TradeLogger {
	t.Helper()
	tl, err := Open(t.TempDir(), "VIRTUAL")
	require.NoError(t, err)
	t.Cleanup(func() { tl.Close() })
	return tl
}

func buy(code string, price float64, qty int, tranche string) *TradeRecord {
	return &TradeRecord{
		StockCode: code,
		StockName: "Samsung Electronics",
		Action:    ActionBuy,
		Price:     price,
		Quantity:  qty,
		Amount:    price * float64(qty),
		Tranche:   tranche,
	}
}

func sell(code string, price float64, qty int, profitLoss float64) *TradeRecord {
	return &TradeRecord{
		StockCode:  code,
		StockName:  "Samsung Electronics",
		Action:     ActionSell,
		Price:      price,
		Quantity:   qty,
		Amount:     price * float64(qty),
		Tranche:    "exit",
		ProfitLoss: profitLoss,
	}
}

func TestLogTradeAndQuery(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(buy("005930", 110, 10, "pyramiding_1")))

	trades, err := tl.TradesFor("005930")
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "initial", trades[0].Tranche)
	assert.Equal(t, ActionBuy, trades[0].Action)
	assert.InDelta(t, 1000.0, trades[0].Amount, 1e-9)
}

func TestRecentTradesNewestFirst(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(buy("000660", 200, 5, "initial")))
	require.NoError(t, tl.LogTrade(sell("005930", 120, 10, 200)))

	trades, err := tl.RecentTrades(2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, ActionSell, trades[0].Action)
	assert.Equal(t, "000660", trades[1].StockCode)
}

func TestSummaryWhileHolding(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(buy("005930", 110, 10, "pyramiding_1")))
	require.NoError(t, tl.UpdateSummary("005930"))

	summaries, err := tl.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, "005930", s.StockCode)
	assert.Equal(t, 2, s.EntryCount)
	assert.Equal(t, 0, s.ExitCount)
	assert.InDelta(t, 2100.0, s.TotalBuyAmount, 1e-9)
	assert.Equal(t, StatusHolding, s.FinalStatus)
}

func TestSummaryAfterFullExit(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(buy("005930", 110, 10, "pyramiding_1")))
	require.NoError(t, tl.LogTrade(sell("005930", 126, 20, 420)))
	require.NoError(t, tl.UpdateSummary("005930"))

	summaries, err := tl.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	s := summaries[0]
	assert.Equal(t, StatusClosed, s.FinalStatus)
	assert.Equal(t, 1, s.ExitCount)
	// 126*20 - (100*10 + 110*10) = 2520 - 2100 = 420
	assert.InDelta(t, 420.0, s.TotalProfitLoss, 1e-9)
	assert.InDelta(t, 20.0, s.ProfitLossPercent, 1e-9)
	assert.InDelta(t, 100.0, s.WinRate, 1e-9)
}

func TestSummaryRecomputedNotAccumulated(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.UpdateSummary("005930"))
	require.NoError(t, tl.UpdateSummary("005930"))
	require.NoError(t, tl.UpdateSummary("005930"))

	summaries, err := tl.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	// Re-running the recompute must not double-count anything
	assert.Equal(t, 1, summaries[0].EntryCount)
	assert.InDelta(t, 1000.0, summaries[0].TotalBuyAmount, 1e-9)
}

func TestSummaryWinRateMixedOutcomes(t *testing.T) {
	tl := openTestLogger(t)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(sell("005930", 110, 10, 100)))
	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(sell("005930", 90, 10, -100)))
	require.NoError(t, tl.UpdateSummary("005930"))

	summaries, err := tl.Summaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.InDelta(t, 50.0, summaries[0].WinRate, 1e-9)
}

func TestStatsForDay(t *testing.T) {
	tl := openTestLogger(t)
	loc := time.UTC
	now := time.Now().In(loc)

	require.NoError(t, tl.LogTrade(buy("005930", 100, 10, "initial")))
	require.NoError(t, tl.LogTrade(sell("005930", 110, 10, 100)))
	require.NoError(t, tl.LogTrade(sell("000660", 90, 5, -50)))

	// A trade from yesterday must not leak into today's stats
	old := buy("000660", 100, 1, "initial")
	old.Timestamp = now.Add(-48 * time.Hour)
	require.NoError(t, tl.LogTrade(old))

	stats, err := tl.StatsForDay(now, loc)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.BuyCount)
	assert.Equal(t, 2, stats.SellCount)
	assert.Equal(t, 1, stats.WinCount)
	assert.InDelta(t, 50.0, stats.WinRate, 1e-9)
	assert.InDelta(t, 50.0, stats.RealizedProfit, 1e-9)
	assert.InDelta(t, 1000.0, stats.TotalBuyAmount, 1e-9)
}
