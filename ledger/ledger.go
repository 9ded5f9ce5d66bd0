// Package ledger owns the per-instrument entry history that tracks cost
// basis across pyramided buys. A record exists only while a position is
// held; deleting it on a full exit is the authoritative signal that a new
// cycle of entries may begin.
package ledger

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Entry one executed buy
type Entry struct {
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	Timestamp time.Time `json:"timestamp"`
	Tranche   string    `json:"tranche"` // "initial" or "pyramiding_N"
}

// Record derived view of one instrument's entry history
type Record struct {
	StockCode     string  `json:"stock_code"`
	StockName     string  `json:"stock_name"`
	Entries       []Entry `json:"entries"`
	AveragePrice  float64 `json:"avg_price"`
	TotalQuantity int     `json:"total_quantity"`
	EntryCount    int     `json:"entry_count"`
}

// Ledger SQLite-backed entry history, one database per account mode.
// Every mutation commits before returning, so a crash mid-cycle loses at
// most the in-flight instrument's update.
type Ledger struct {
	db *sql.DB
}

// Open opens (or creates) the ledger database for an account mode
func Open(dataDir, mode string) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, fmt.Sprintf("trading_%s.db", strings.ToLower(mode)))
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger database connection failed: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// OpenDB wraps an already-open database handle (shared with the trade
// logger so both live in the same per-mode file)
func OpenDB(db *sql.DB) (*Ledger, error) {
	l := &Ledger{db: db}
	if err := l.initDB(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trade_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT NOT NULL,
		stock_name TEXT NOT NULL,
		price REAL NOT NULL,
		quantity INTEGER NOT NULL,
		tranche TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_history_code ON trade_history(stock_code);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordEntry appends one executed buy for an instrument. The derived
// average/total/count change implicitly with the insert.
func (l *Ledger) RecordEntry(code, name string, price float64, quantity int, tranche string) error {
	_, err := l.db.Exec(
		`INSERT INTO trade_history (stock_code, stock_name, price, quantity, tranche, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		code, name, price, quantity, tranche, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record entry for %s: %w", code, err)
	}
	return nil
}

// Clear removes the instrument's record entirely. Called after a full
// exit; the next successful buy starts a fresh entry cycle.
func (l *Ledger) Clear(code string) error {
	_, err := l.db.Exec(`DELETE FROM trade_history WHERE stock_code = ?`, code)
	if err != nil {
		return fmt.Errorf("failed to clear ledger for %s: %w", code, err)
	}
	return nil
}

// Record returns the derived record for an instrument, or nil when no
// entries exist (flat position)
func (l *Ledger) Record(code string) (*Record, error) {
	rows, err := l.db.Query(
		`SELECT stock_name, price, quantity, tranche, timestamp
		 FROM trade_history WHERE stock_code = ? ORDER BY id ASC`, code)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger for %s: %w", code, err)
	}
	defer rows.Close()

	rec := &Record{StockCode: code}
	totalAmount := 0.0
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&rec.StockName, &e.Price, &e.Quantity, &e.Tranche, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		rec.Entries = append(rec.Entries, e)
		totalAmount += e.Price * float64(e.Quantity)
		rec.TotalQuantity += e.Quantity
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(rec.Entries) == 0 {
		return nil, nil
	}
	rec.EntryCount = len(rec.Entries)
	if rec.TotalQuantity > 0 {
		rec.AveragePrice = totalAmount / float64(rec.TotalQuantity)
	}
	return rec, nil
}

// AveragePrice cost basis across all entries; 0 when flat
func (l *Ledger) AveragePrice(code string) (float64, error) {
	rec, err := l.Record(code)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.AveragePrice, nil
}

// EntryCount number of entries made in the current cycle; 0 when flat
func (l *Ledger) EntryCount(code string) (int, error) {
	rec, err := l.Record(code)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.EntryCount, nil
}

// LastEntryPrice price of the most recent buy; 0 when flat
func (l *Ledger) LastEntryPrice(code string) (float64, error) {
	rec, err := l.Record(code)
	if err != nil || rec == nil {
		return 0, err
	}
	return rec.Entries[len(rec.Entries)-1].Price, nil
}

// FirstEntryTime timestamp of the first buy in the current cycle, used
// for holding-duration reporting; zero time when flat
func (l *Ledger) FirstEntryTime(code string) (time.Time, error) {
	rec, err := l.Record(code)
	if err != nil || rec == nil {
		return time.Time{}, err
	}
	return rec.Entries[0].Timestamp, nil
}

// AllRecords returns every held instrument's record, for the reporting API
func (l *Ledger) AllRecords() ([]*Record, error) {
	rows, err := l.db.Query(`SELECT DISTINCT stock_code FROM trade_history ORDER BY stock_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger instruments: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(codes))
	for _, code := range codes {
		rec, err := l.Record(code)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}
