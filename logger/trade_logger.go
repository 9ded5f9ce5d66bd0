// Package logger keeps the append-only trade audit log and the derived
// per-instrument summary view. The log is the source of truth for
// reporting; summaries are recomputed from it after every trade.
package logger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Trade actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Final position status in the summary view
const (
	StatusHolding = "HOLDING"
	StatusClosed  = "CLOSED"
)

// TradeRecord one executed order, with the config's risk parameters
// captured at execution time
type TradeRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	StockCode         string    `json:"stock_code"`
	StockName         string    `json:"stock_name"`
	Action            string    `json:"action"` // BUY or SELL
	Price             float64   `json:"price"`
	Quantity          int       `json:"quantity"`
	Amount            float64   `json:"amount"`
	Tranche           string    `json:"tranche"` // "initial", "pyramiding_N" or "exit"
	Reason            string    `json:"reason"`
	AvgPrice          float64   `json:"avg_price"`
	TotalQuantity     int       `json:"total_quantity"`
	ProfitLoss        float64   `json:"profit_loss"`
	ProfitLossPercent float64   `json:"profit_loss_percent"`
	TradingMode       string    `json:"trading_mode"`
	StopLoss          float64   `json:"stop_loss"`
	TakeProfit        float64   `json:"take_profit"`
	PyramidingCount   int       `json:"pyramiding_count"`
	EntryPoint        float64   `json:"entry_point"`
}

// Summary derived per-instrument view, recomputed from the trade log
type Summary struct {
	StockCode         string  `json:"stock_code"`
	StockName         string  `json:"stock_name"`
	FirstEntryDate    string  `json:"first_entry_date"`
	LastExitDate      string  `json:"last_exit_date"`
	TotalBuyAmount    float64 `json:"total_buy_amount"`
	TotalSellAmount   float64 `json:"total_sell_amount"`
	TotalProfitLoss   float64 `json:"total_profit_loss"`
	ProfitLossPercent float64 `json:"profit_loss_percent"`
	HoldingDays       float64 `json:"holding_days"`
	EntryCount        int     `json:"entry_count"`
	ExitCount         int     `json:"exit_count"`
	TradingMode       string  `json:"trading_mode"`
	WinRate           float64 `json:"win_rate"`
	FinalStatus       string  `json:"final_status"` // HOLDING or CLOSED
}

// DailyStats close-of-session roll-up for the daily Telegram summary
type DailyStats struct {
	Date           string  `json:"date"`
	BuyCount       int     `json:"buy_count"`
	SellCount      int     `json:"sell_count"`
	TotalBuyAmount float64 `json:"total_buy_amount"`
	RealizedProfit float64 `json:"realized_profit"`
	WinCount       int     `json:"win_count"`
	WinRate        float64 `json:"win_rate"`
}

// TradeLogger SQLite-backed audit log, one database per account mode
// (same file as the ledger, separate tables)
type TradeLogger struct {
	db *sql.DB
}

// Open opens (or creates) the trade log for an account mode
func Open(dataDir, mode string) (*TradeLogger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("trading_%s.db", strings.ToLower(mode)))
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open trade log database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trade log database connection failed: %w", err)
	}

	tl := &TradeLogger{db: db}
	if err := tl.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return tl, nil
}

func (tl *TradeLogger) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		stock_code TEXT NOT NULL,
		stock_name TEXT NOT NULL,
		action TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		amount REAL NOT NULL,
		tranche TEXT,
		reason TEXT,
		avg_price REAL,
		total_quantity INTEGER,
		profit_loss REAL,
		profit_loss_percent REAL,
		trading_mode TEXT,
		stop_loss REAL,
		take_profit REAL,
		pyramiding_count INTEGER,
		entry_point REAL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_log_code ON trade_log(stock_code);
	CREATE INDEX IF NOT EXISTS idx_trade_log_ts ON trade_log(timestamp);

	CREATE TABLE IF NOT EXISTS trade_summary (
		stock_code TEXT PRIMARY KEY,
		stock_name TEXT NOT NULL,
		first_entry_date TEXT,
		last_exit_date TEXT,
		total_buy_amount REAL,
		total_sell_amount REAL,
		total_profit_loss REAL,
		profit_loss_percent REAL,
		holding_days REAL,
		entry_count INTEGER,
		exit_count INTEGER,
		trading_mode TEXT,
		win_rate REAL,
		final_status TEXT
	);
	`
	if _, err := tl.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize trade log schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (tl *TradeLogger) Close() error {
	return tl.db.Close()
}

// LogTrade appends one executed order to the audit log
func (tl *TradeLogger) LogTrade(rec *TradeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	_, err := tl.db.Exec(
		`INSERT INTO trade_log (
			timestamp, stock_code, stock_name, action, price, quantity, amount,
			tranche, reason, avg_price, total_quantity, profit_loss,
			profit_loss_percent, trading_mode, stop_loss, take_profit,
			pyramiding_count, entry_point
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC(), rec.StockCode, rec.StockName, rec.Action, rec.Price,
		rec.Quantity, rec.Amount, rec.Tranche, rec.Reason, rec.AvgPrice,
		rec.TotalQuantity, rec.ProfitLoss, rec.ProfitLossPercent, rec.TradingMode,
		rec.StopLoss, rec.TakeProfit, rec.PyramidingCount, rec.EntryPoint,
	)
	if err != nil {
		return fmt.Errorf("failed to log trade for %s: %w", rec.StockCode, err)
	}
	return nil
}

// UpdateSummary recomputes the instrument's summary row from the full
// trade log. Called after every logged trade.
func (tl *TradeLogger) UpdateSummary(code string) error {
	trades, err := tl.TradesFor(code)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	var (
		buys, sells                    []TradeRecord
		totalBuyAmount, totalSellAmt   float64
		totalBuyQty, totalSellQty, won int
	)
	for _, t := range trades {
		if t.Action == ActionBuy {
			buys = append(buys, t)
			totalBuyAmount += t.Amount
			totalBuyQty += t.Quantity
		} else {
			sells = append(sells, t)
			totalSellAmt += t.Amount
			totalSellQty += t.Quantity
			if t.ProfitLoss > 0 {
				won++
			}
		}
	}

	const dateFormat = "2006-01-02 15:04:05"
	firstEntry, lastExit := "", ""
	holdingDays := 0.0
	if len(buys) > 0 {
		firstEntry = buys[0].Timestamp.Format(dateFormat)
	}
	if len(sells) > 0 {
		lastExit = sells[len(sells)-1].Timestamp.Format(dateFormat)
	}
	if len(buys) > 0 && len(sells) > 0 {
		holdingDays = sells[len(sells)-1].Timestamp.Sub(buys[0].Timestamp).Hours() / 24
	}

	totalProfitLoss := totalSellAmt - totalBuyAmount
	profitLossPercent := 0.0
	if totalBuyAmount > 0 {
		profitLossPercent = totalProfitLoss / totalBuyAmount * 100
	}
	winRate := 0.0
	if len(sells) > 0 {
		winRate = float64(won) / float64(len(sells)) * 100
	}
	status := StatusHolding
	if totalBuyQty-totalSellQty <= 0 && len(sells) > 0 {
		status = StatusClosed
	}

	_, err = tl.db.Exec(
		`INSERT INTO trade_summary (
			stock_code, stock_name, first_entry_date, last_exit_date,
			total_buy_amount, total_sell_amount, total_profit_loss,
			profit_loss_percent, holding_days, entry_count, exit_count,
			trading_mode, win_rate, final_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(stock_code) DO UPDATE SET
			stock_name = excluded.stock_name,
			first_entry_date = excluded.first_entry_date,
			last_exit_date = excluded.last_exit_date,
			total_buy_amount = excluded.total_buy_amount,
			total_sell_amount = excluded.total_sell_amount,
			total_profit_loss = excluded.total_profit_loss,
			profit_loss_percent = excluded.profit_loss_percent,
			holding_days = excluded.holding_days,
			entry_count = excluded.entry_count,
			exit_count = excluded.exit_count,
			trading_mode = excluded.trading_mode,
			win_rate = excluded.win_rate,
			final_status = excluded.final_status`,
		code, trades[0].StockName, firstEntry, lastExit,
		totalBuyAmount, totalSellAmt, totalProfitLoss,
		profitLossPercent, holdingDays, len(buys), len(sells),
		trades[0].TradingMode, winRate, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update summary for %s: %w", code, err)
	}
	return nil
}

// TradesFor returns the full trade history for an instrument, oldest first
func (tl *TradeLogger) TradesFor(code string) ([]TradeRecord, error) {
	return tl.queryTrades(`SELECT `+tradeColumns+` FROM trade_log WHERE stock_code = ? ORDER BY id ASC`, code)
}

// RecentTrades returns the latest trades across all instruments, newest
// first, capped at limit
func (tl *TradeLogger) RecentTrades(limit int) ([]TradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return tl.queryTrades(`SELECT `+tradeColumns+` FROM trade_log ORDER BY id DESC LIMIT ?`, limit)
}

const tradeColumns = `timestamp, stock_code, stock_name, action, price, quantity,
	amount, tranche, reason, avg_price, total_quantity, profit_loss,
	profit_loss_percent, trading_mode, stop_loss, take_profit,
	pyramiding_count, entry_point`

func (tl *TradeLogger) queryTrades(query string, args ...interface{}) ([]TradeRecord, error) {
	rows, err := tl.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade log: %w", err)
	}
	defer rows.Close()

	var trades []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(
			&t.Timestamp, &t.StockCode, &t.StockName, &t.Action, &t.Price,
			&t.Quantity, &t.Amount, &t.Tranche, &t.Reason, &t.AvgPrice,
			&t.TotalQuantity, &t.ProfitLoss, &t.ProfitLossPercent, &t.TradingMode,
			&t.StopLoss, &t.TakeProfit, &t.PyramidingCount, &t.EntryPoint,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Summaries returns the current summary view for all instruments
func (tl *TradeLogger) Summaries() ([]Summary, error) {
	rows, err := tl.db.Query(
		`SELECT stock_code, stock_name, first_entry_date, last_exit_date,
			total_buy_amount, total_sell_amount, total_profit_loss,
			profit_loss_percent, holding_days, entry_count, exit_count,
			trading_mode, win_rate, final_status
		 FROM trade_summary ORDER BY stock_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(
			&s.StockCode, &s.StockName, &s.FirstEntryDate, &s.LastExitDate,
			&s.TotalBuyAmount, &s.TotalSellAmount, &s.TotalProfitLoss,
			&s.ProfitLossPercent, &s.HoldingDays, &s.EntryCount, &s.ExitCount,
			&s.TradingMode, &s.WinRate, &s.FinalStatus,
		); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// StatsForDay rolls up one trading day's activity (day in the local
// session timezone)
func (tl *TradeLogger) StatsForDay(day time.Time, loc *time.Location) (*DailyStats, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)

	trades, err := tl.queryTrades(
		`SELECT `+tradeColumns+` FROM trade_log WHERE timestamp >= ? AND timestamp < ? ORDER BY id ASC`,
		start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}

	stats := &DailyStats{Date: start.Format("2006-01-02")}
	for _, t := range trades {
		if t.Action == ActionBuy {
			stats.BuyCount++
			stats.TotalBuyAmount += t.Amount
		} else {
			stats.SellCount++
			stats.RealizedProfit += t.ProfitLoss
			if t.ProfitLoss > 0 {
				stats.WinCount++
			}
		}
	}
	if stats.SellCount > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(stats.SellCount) * 100
	}
	return stats, nil
}
