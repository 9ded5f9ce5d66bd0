// Command summarize prints the per-instrument trade aggregates and recent
// trades from the audit database.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"

	"mirae/config"
	"mirae/logger"
)

func main() {
	configFile := flag.String("config", "config.json", "engine configuration file")
	recent := flag.Int("recent", 10, "number of recent trades to show")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}

	tradeLog, err := logger.Open(cfg.DataDir, cfg.Mode)
	if err != nil {
		log.Fatalf("❌ Failed to open trade log: %v", err)
	}
	defer tradeLog.Close()

	summaries, err := tradeLog.Summaries()
	if err != nil {
		log.Fatalf("❌ Failed to read summaries: %v", err)
	}

	fmt.Println(strings.Repeat("=", 100))
	fmt.Printf("📊 TRADE SUMMARY (%s)\n", cfg.Mode)
	fmt.Println(strings.Repeat("=", 100))
	fmt.Println()

	if len(summaries) == 0 {
		fmt.Println("No trades recorded yet.")
		return
	}

	fmt.Printf("%-10s %-16s %6s %6s %8s %6s %12s %8s %-8s\n",
		"Code", "Name", "Buys", "Sells", "Days", "Win%", "P&L", "P&L %", "Status")
	fmt.Println(strings.Repeat("-", 100))

	totalPnL := 0.0
	for _, s := range summaries {
		fmt.Printf("%-10s %-16s %6d %6d %8.1f %5.1f%% %+12.0f %+7.2f%% %-8s\n",
			s.StockCode, s.StockName, s.EntryCount, s.ExitCount,
			s.HoldingDays, s.WinRate, s.TotalProfitLoss, s.ProfitLossPercent, s.FinalStatus)
		totalPnL += s.TotalProfitLoss
	}

	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("💰 Total realized P&L: %+.0f\n", totalPnL)
	fmt.Println()

	if *recent > 0 {
		trades, err := tradeLog.RecentTrades(*recent)
		if err != nil {
			log.Fatalf("❌ Failed to read recent trades: %v", err)
		}

		fmt.Printf("🕐 Last %d trades:\n", len(trades))
		fmt.Println(strings.Repeat("-", 100))
		for _, t := range trades {
			line := fmt.Sprintf("%s  %-4s %-16s %6d @ %8.0f  (%s)",
				t.Timestamp.Format("2006-01-02 15:04"), t.Action, t.StockName,
				t.Quantity, t.Price, t.Tranche)
			if t.Action == logger.ActionSell {
				line += fmt.Sprintf("  P&L: %+.0f (%+.2f%%)", t.ProfitLoss, t.ProfitLossPercent)
			}
			fmt.Println(line)
		}
	}
}
