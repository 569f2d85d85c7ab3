package export

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

func sampleRecords() []BarRecord {
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	ts := day.Add(14 * time.Hour)
	p := decimal.RequireFromString("101.25")
	daily := market.Bar{Symbol: "AAPL", TradingDay: day, Open: p, High: p, Low: p, Close: p, AdjustedClose: p, Volume: 10}
	hourly := daily
	hourly.Timestamp = &ts
	return Records([]market.Bar{daily, hourly})
}

func TestNewBarRecord(t *testing.T) {
	recs := sampleRecords()
	require.Len(t, recs, 2)

	assert.Equal(t, "2025-01-10", recs[0].TradingDay)
	assert.Equal(t, "daily", recs[0].Granularity)
	assert.Equal(t, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC).UnixMilli(), recs[0].BarTime)
	assert.Equal(t, "hourly", recs[1].Granularity)
	assert.Equal(t, time.Date(2025, 1, 10, 14, 0, 0, 0, time.UTC).UnixMilli(), recs[1].BarTime)
	assert.InDelta(t, 101.25, recs[1].Close, 1e-9)
}

func TestNewSaver(t *testing.T) {
	for _, f := range Formats {
		s, err := NewSaver(f)
		require.NoError(t, err)
		assert.Equal(t, f, s.Extension())
	}
	_, err := NewSaver("xlsx")
	assert.Error(t, err)
}

func TestSavers(t *testing.T) {
	dir := t.TempDir()
	recs := sampleRecords()

	for _, f := range Formats {
		s, err := NewSaver(f)
		require.NoError(t, err)
		require.NoError(t, s.Save(recs, filepath.Join(dir, "bars."+s.Extension())))
	}

	t.Run("csv", func(t *testing.T) {
		fh, err := os.Open(filepath.Join(dir, "bars.csv"))
		require.NoError(t, err)
		defer fh.Close()
		rows, err := csv.NewReader(fh).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, csvHeader, rows[0])
		assert.Equal(t, "101.25", rows[1][7])
	})

	t.Run("json", func(t *testing.T) {
		data, err := os.ReadFile(filepath.Join(dir, "bars.json"))
		require.NoError(t, err)
		var got []BarRecord
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, recs, got)
	})

	t.Run("parquet", func(t *testing.T) {
		got, err := parquet.ReadFile[BarRecord](filepath.Join(dir, "bars.parquet"))
		require.NoError(t, err)
		assert.Equal(t, recs, got)
	})
}
