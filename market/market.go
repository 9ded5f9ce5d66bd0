package market

import "time"

// Candle one OHLC bar of daily price history
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// HeldPosition one holding reported by the brokerage account
type HeldPosition struct {
	Code     string  `json:"code"`      // Instrument code (e.g. "005930")
	Name     string  `json:"name"`      // Display name
	Quantity int     `json:"quantity"`  // Held shares
	AvgPrice float64 `json:"avg_price"` // Brokerage-side average purchase price
}

// MarketData market data capability of a brokerage gateway.
// All prices are in the account's settlement currency.
type MarketData interface {
	// GetBalance returns total account equity
	GetBalance() (float64, error)
	// GetPositions returns the currently held instruments
	GetPositions() ([]HeldPosition, error)
	// GetCurrentPrice returns the latest trade price for an instrument
	GetCurrentPrice(code string) (float64, error)
	// GetOHLC returns up to limit daily candles, oldest first, most recent last
	GetOHLC(code string, limit int) ([]Candle, error)
}

// OrderGateway order execution capability of a brokerage gateway.
// Market orders only - the engine never places limit orders.
type OrderGateway interface {
	MarketBuy(code string, quantity int) error
	MarketSell(code string, quantity int) error
}

// FindPosition returns the held position for code, or nil
func FindPosition(positions []HeldPosition, code string) *HeldPosition {
	for i := range positions {
		if positions[i].Code == code {
			return &positions[i]
		}
	}
	return nil
}
