package market

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PaperGateway simulated brokerage account. Satisfies both the market
// data and order capabilities, filling market orders instantly at the
// feed's current price. Account state is persisted to a JSON file so it
// survives the engine's one-shot invocations.
type PaperGateway struct {
	feed      MarketData // price source; nil falls back to a simulated feed
	stateFile string

	mu        sync.Mutex
	cash      float64
	positions map[string]*paperPosition

	rng *rand.Rand
}

type paperPosition struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	AvgPrice float64 `json:"avg_price"`
}

type paperState struct {
	Cash      float64                   `json:"cash"`
	Positions map[string]*paperPosition `json:"positions"`
}

// NewPaper creates a paper gateway with the given starting cash. Pass a
// real gateway as feed to trade simulated money against live prices; a
// nil feed uses an internal random-walk price generator.
func NewPaper(feed MarketData, initialBalance float64, dataDir, mode string) (*PaperGateway, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	p := &PaperGateway{
		feed:      feed,
		stateFile: filepath.Join(dataDir, fmt.Sprintf("paper_account_%s.json", mode)),
		cash:      initialBalance,
		positions: make(map[string]*paperPosition),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := p.loadState(); err != nil {
		return nil, err
	}
	return p, nil
}

// loadState restores the persisted account, keeping the fresh defaults
// when no state file exists yet
func (p *PaperGateway) loadState() error {
	data, err := os.ReadFile(p.stateFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read paper account state: %w", err)
	}

	var state paperState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse paper account state: %w", err)
	}
	p.cash = state.Cash
	if state.Positions != nil {
		p.positions = state.Positions
	}
	return nil
}

// saveState persists the account after every fill
func (p *PaperGateway) saveState() error {
	state := paperState{Cash: p.cash, Positions: p.positions}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.stateFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save paper account state: %w", err)
	}
	return nil
}

// GetBalance equity = cash + market value of all holdings
func (p *PaperGateway) GetBalance() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	equity := p.cash
	for code, pos := range p.positions {
		price, err := p.currentPrice(code)
		if err != nil {
			// Feed hiccup: fall back to cost basis rather than failing
			// the whole balance call
			price = pos.AvgPrice
		}
		equity += price * float64(pos.Quantity)
	}
	return equity, nil
}

// GetPositions currently held instruments
func (p *PaperGateway) GetPositions() ([]HeldPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var held []HeldPosition
	for code, pos := range p.positions {
		held = append(held, HeldPosition{
			Code:     code,
			Name:     pos.Name,
			Quantity: pos.Quantity,
			AvgPrice: pos.AvgPrice,
		})
	}
	return held, nil
}

// GetCurrentPrice delegates to the feed, or simulates
func (p *PaperGateway) GetCurrentPrice(code string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentPrice(code)
}

func (p *PaperGateway) currentPrice(code string) (float64, error) {
	if p.feed != nil {
		return p.feed.GetCurrentPrice(code)
	}
	return p.simulatedPrice(code), nil
}

// simulatedPrice deterministic base per instrument plus a small random
// walk, enough to exercise the engine without a brokerage connection
func (p *PaperGateway) simulatedPrice(code string) float64 {
	h := fnv.New32a()
	h.Write([]byte(code))
	base := 10_000 + float64(h.Sum32()%90_000)
	return base * (1 + (p.rng.Float64()-0.5)*0.02)
}

// GetOHLC delegates to the feed, or synthesizes history around the
// simulated price
func (p *PaperGateway) GetOHLC(code string, limit int) ([]Candle, error) {
	if p.feed != nil {
		return p.feed.GetOHLC(code, limit)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	candles := make([]Candle, 0, limit)
	price := p.simulatedPrice(code)
	day := time.Now().AddDate(0, 0, -limit)
	for i := 0; i < limit; i++ {
		move := price * 0.01 * (p.rng.Float64() - 0.5)
		open := price - move
		close := price + move
		high := close * 1.01
		low := open * 0.99
		candles = append(candles, Candle{
			Date: day.AddDate(0, 0, i), Open: open, High: high, Low: low, Close: close,
		})
		price = close
	}
	return candles, nil
}

// MarketBuy fills at current price, reducing cash
func (p *PaperGateway) MarketBuy(code string, quantity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	price, err := p.currentPrice(code)
	if err != nil {
		return fmt.Errorf("paper buy: no price for %s: %w", code, err)
	}

	cost := price * float64(quantity)
	if cost > p.cash {
		return fmt.Errorf("paper buy: insufficient cash (need %.0f, have %.0f)", cost, p.cash)
	}

	pos := p.positions[code]
	if pos == nil {
		pos = &paperPosition{}
		p.positions[code] = pos
	}
	totalCost := pos.AvgPrice*float64(pos.Quantity) + cost
	pos.Quantity += quantity
	pos.AvgPrice = totalCost / float64(pos.Quantity)
	p.cash -= cost

	log.Printf("📝 [paper] BUY %s x%d @ %.0f (cash: %.0f)", code, quantity, price, p.cash)
	return p.saveState()
}

// MarketSell fills at current price, adding proceeds to cash
func (p *PaperGateway) MarketSell(code string, quantity int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[code]
	if pos == nil || pos.Quantity < quantity {
		return fmt.Errorf("paper sell: not holding %d of %s", quantity, code)
	}

	price, err := p.currentPrice(code)
	if err != nil {
		return fmt.Errorf("paper sell: no price for %s: %w", code, err)
	}

	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(p.positions, code)
	}
	p.cash += price * float64(quantity)

	log.Printf("📝 [paper] SELL %s x%d @ %.0f (cash: %.0f)", code, quantity, price, p.cash)
	return p.saveState()
}
