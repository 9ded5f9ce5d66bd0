package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindPosition(t *testing.T) {
	positions := []HeldPosition{
		{Code: "005930", Name: "Samsung Electronics", Quantity: 10},
		{Code: "000660", Name: "SK Hynix", Quantity: 5},
	}

	pos := FindPosition(positions, "000660")
	require.NotNil(t, pos)
	assert.Equal(t, 5, pos.Quantity)

	assert.Nil(t, FindPosition(positions, "035720"))
	assert.Nil(t, FindPosition(nil, "005930"))
}

func TestPaperBuySellRoundTrip(t *testing.T) {
	p, err := NewPaper(nil, 1_000_000, t.TempDir(), "virtual")
	require.NoError(t, err)

	price, err := p.GetCurrentPrice("005930")
	require.NoError(t, err)
	require.Greater(t, price, 0.0)

	require.NoError(t, p.MarketBuy("005930", 3))

	positions, err := p.GetPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 3, positions[0].Quantity)
	assert.Greater(t, positions[0].AvgPrice, 0.0)

	// Equity stays close to the starting cash: the buy only moved money
	// from cash into the holding (prices drift up to ±1% per quote)
	balance, err := p.GetBalance()
	require.NoError(t, err)
	assert.InDelta(t, 1_000_000, balance, float64(3)*price*0.05)

	require.NoError(t, p.MarketSell("005930", 3))
	positions, err = p.GetPositions()
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestPaperRejectsOverdraft(t *testing.T) {
	p, err := NewPaper(nil, 100, t.TempDir(), "virtual")
	require.NoError(t, err)

	// Simulated prices start at 10,000 minimum
	assert.Error(t, p.MarketBuy("005930", 1))
}

func TestPaperRejectsShortSell(t *testing.T) {
	p, err := NewPaper(nil, 1_000_000, t.TempDir(), "virtual")
	require.NoError(t, err)

	assert.Error(t, p.MarketSell("005930", 1))

	require.NoError(t, p.MarketBuy("005930", 2))
	assert.Error(t, p.MarketSell("005930", 3))
}

func TestPaperStateSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	p, err := NewPaper(nil, 1_000_000, dir, "virtual")
	require.NoError(t, err)
	require.NoError(t, p.MarketBuy("005930", 2))

	cashBefore := p.cash

	// A fresh one-shot invocation restores the persisted account
	p2, err := NewPaper(nil, 1_000_000, dir, "virtual")
	require.NoError(t, err)

	assert.InDelta(t, cashBefore, p2.cash, 1e-9)
	positions, err := p2.GetPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 2, positions[0].Quantity)
}

func TestPaperSimulatedOHLC(t *testing.T) {
	p, err := NewPaper(nil, 1_000_000, t.TempDir(), "virtual")
	require.NoError(t, err)

	candles, err := p.GetOHLC("005930", 20)
	require.NoError(t, err)
	require.Len(t, candles, 20)
	for _, c := range candles {
		assert.GreaterOrEqual(t, c.High, c.Low)
	}
}
