package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mirae/config"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir(), config.ModeVirtual)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordNilWhenFlat(t *testing.T) {
	l := openTestLedger(t)

	rec, err := l.Record("005930")
	require.NoError(t, err)
	assert.Nil(t, rec)

	count, err := l.EntryCount("005930")
	require.NoError(t, err)
	assert.Zero(t, count)

	avg, err := l.AveragePrice("005930")
	require.NoError(t, err)
	assert.Zero(t, avg)
}

func TestRecordDerivedAggregates(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 110, 10, "pyramiding_1"))

	rec, err := l.Record("005930")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Equal(t, "005930", rec.StockCode)
	assert.Equal(t, "Samsung Electronics", rec.StockName)
	assert.Equal(t, 2, rec.EntryCount)
	assert.Equal(t, 20, rec.TotalQuantity)
	assert.InDelta(t, 105.0, rec.AveragePrice, 1e-9)

	require.Len(t, rec.Entries, 2)
	assert.Equal(t, "initial", rec.Entries[0].Tranche)
	assert.Equal(t, "pyramiding_1", rec.Entries[1].Tranche)
}

func TestUnevenQuantitiesWeightAverage(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("000660", "SK Hynix", 100, 30, "initial"))
	require.NoError(t, l.RecordEntry("000660", "SK Hynix", 120, 10, "pyramiding_1"))

	avg, err := l.AveragePrice("000660")
	require.NoError(t, err)
	// (100*30 + 120*10) / 40 = 105
	assert.InDelta(t, 105.0, avg, 1e-9)
}

func TestClearResetsToFlat(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.Clear("005930"))

	rec, err := l.Record("005930")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// A fresh cycle starts counting from zero again
	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 200, 5, "initial"))
	count, err := l.EntryCount("005930")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestClearIsScopedToInstrument(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.RecordEntry("000660", "SK Hynix", 200, 5, "initial"))
	require.NoError(t, l.Clear("005930"))

	rec, err := l.Record("000660")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 5, rec.TotalQuantity)
}

func TestLastEntryPrice(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 110, 10, "pyramiding_1"))

	last, err := l.LastEntryPrice("005930")
	require.NoError(t, err)
	assert.InDelta(t, 110.0, last, 1e-9)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	l, err := Open(dir, config.ModeVirtual)
	require.NoError(t, err)
	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.Close())

	// A new one-shot invocation sees the committed entries
	l, err = Open(dir, config.ModeVirtual)
	require.NoError(t, err)
	defer l.Close()

	rec, err := l.Record("005930")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 10, rec.TotalQuantity)
}

func TestModesUseSeparateDatabases(t *testing.T) {
	dir := t.TempDir()

	real, err := Open(dir, config.ModeReal)
	require.NoError(t, err)
	defer real.Close()

	virtual, err := Open(dir, config.ModeVirtual)
	require.NoError(t, err)
	defer virtual.Close()

	require.NoError(t, real.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))

	rec, err := virtual.Record("005930")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestAllRecords(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.RecordEntry("005930", "Samsung Electronics", 100, 10, "initial"))
	require.NoError(t, l.RecordEntry("000660", "SK Hynix", 200, 5, "initial"))

	records, err := l.AllRecords()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "000660", records[0].StockCode)
	assert.Equal(t, "005930", records[1].StockCode)
}
