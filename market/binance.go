package market

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
)

// BinanceGateway Binance spot gateway for crypto accounts. Symbols are
// pair codes like "BTCUSDT". Quantities are whole units of the base
// asset, matching the engine's integer share model.
type BinanceGateway struct {
	client     *binance.Client
	quoteAsset string
}

// NewBinance creates a Binance spot gateway settling in quoteAsset
// (defaults to USDT)
func NewBinance(apiKey, secretKey, quoteAsset string) *BinanceGateway {
	if quoteAsset == "" {
		quoteAsset = "USDT"
	}
	return &BinanceGateway{
		client:     binance.NewClient(apiKey, secretKey),
		quoteAsset: quoteAsset,
	}
}

func (b *BinanceGateway) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

// GetBalance equity = free+locked quote balance plus the quote value of
// every held base asset
func (b *BinanceGateway) GetBalance() (float64, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance account query failed: %w", err)
	}

	equity := 0.0
	for _, bal := range account.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		total := free + locked
		if total <= 0 {
			continue
		}
		if bal.Asset == b.quoteAsset {
			equity += total
			continue
		}
		price, err := b.GetCurrentPrice(bal.Asset + b.quoteAsset)
		if err != nil {
			// Untradeable dust: ignore rather than fail the balance call
			continue
		}
		equity += total * price
	}
	return equity, nil
}

// GetPositions non-quote balances, reported as pair codes. Spot accounts
// carry no brokerage-side average price; cost basis comes from the
// ledger.
func (b *BinanceGateway) GetPositions() ([]HeldPosition, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance account query failed: %w", err)
	}

	var positions []HeldPosition
	for _, bal := range account.Balances {
		if bal.Asset == b.quoteAsset {
			continue
		}
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		qty := int(free + locked)
		if qty <= 0 {
			continue
		}
		positions = append(positions, HeldPosition{
			Code:     bal.Asset + b.quoteAsset,
			Name:     bal.Asset,
			Quantity: qty,
		})
	}
	return positions, nil
}

// GetCurrentPrice latest trade price for a pair
func (b *BinanceGateway) GetCurrentPrice(symbol string) (float64, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	prices, err := b.client.NewListPricesService().Symbol(strings.ToUpper(symbol)).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance price query failed for %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("binance returned no price for %s", symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance price parse failed for %s: %w", symbol, err)
	}
	return price, nil
}

// GetOHLC daily candles, oldest first (Binance already orders them that
// way)
func (b *BinanceGateway) GetOHLC(symbol string, limit int) ([]Candle, error) {
	ctx, cancel := b.ctx()
	defer cancel()

	klines, err := b.client.NewKlinesService().
		Symbol(strings.ToUpper(symbol)).
		Interval("1d").
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines query failed for %s: %w", symbol, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		close, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)
		candles = append(candles, Candle{
			Date:   time.UnixMilli(k.OpenTime),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  close,
			Volume: volume,
		})
	}
	return candles, nil
}

// marketOrder places a spot market order
func (b *BinanceGateway) marketOrder(symbol string, quantity int, side binance.SideType) error {
	ctx, cancel := b.ctx()
	defer cancel()

	_, err := b.client.NewCreateOrderService().
		Symbol(strings.ToUpper(symbol)).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.Itoa(quantity)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("binance %s order failed for %s: %w", side, symbol, err)
	}
	return nil
}

// MarketBuy places a market buy order
func (b *BinanceGateway) MarketBuy(symbol string, quantity int) error {
	return b.marketOrder(symbol, quantity, binance.SideTypeBuy)
}

// MarketSell places a market sell order
func (b *BinanceGateway) MarketSell(symbol string, quantity int) error {
	return b.marketOrder(symbol, quantity, binance.SideTypeSell)
}
