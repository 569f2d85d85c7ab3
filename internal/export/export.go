// Package export writes stored bars to files.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// BarRecord is the flat file form of a bar.
type BarRecord struct {
	Symbol        string  `json:"symbol" parquet:"symbol,dict"`
	TradingDay    string  `json:"trading_day" parquet:"trading_day"`
	Granularity   string  `json:"granularity" parquet:"granularity,dict"`
	BarTime       int64   `json:"t" parquet:"t"`
	Open          float64 `json:"o" parquet:"o"`
	High          float64 `json:"h" parquet:"h"`
	Low           float64 `json:"l" parquet:"l"`
	Close         float64 `json:"c" parquet:"c"`
	AdjustedClose float64 `json:"ac" parquet:"ac"`
	Volume        int64   `json:"v" parquet:"v"`
}

// NewBarRecord flattens b.
func NewBarRecord(b market.Bar) BarRecord {
	return BarRecord{
		Symbol:        b.Symbol,
		TradingDay:    b.TradingDay.Format(time.DateOnly),
		Granularity:   string(b.Granularity()),
		BarTime:       b.BarTime().UnixMilli(),
		Open:          b.Open.InexactFloat64(),
		High:          b.High.InexactFloat64(),
		Low:           b.Low.InexactFloat64(),
		Close:         b.Close.InexactFloat64(),
		AdjustedClose: b.AdjustedClose.InexactFloat64(),
		Volume:        b.Volume,
	}
}

// Records flattens bars.
func Records(bars []market.Bar) []BarRecord {
	out := make([]BarRecord, len(bars))
	for i, b := range bars {
		out[i] = NewBarRecord(b)
	}
	return out
}

// Saver writes records to a file in one format.
type Saver interface {
	Save(records []BarRecord, path string) error
	Extension() string
}

// Formats lists the supported formats.
var Formats = []string{"csv", "json", "parquet"}

// NewSaver returns the saver for format.
func NewSaver(format string) (Saver, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}, nil
	case "json":
		return JSONSaver{}, nil
	case "parquet":
		return ParquetSaver{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (valid: %s)", format, strings.Join(Formats, ", "))
	}
}
