//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package market defines the bar data model, asset classes, horizons and
// the trading calendar shared by the generator, the store and the
// ingestion pipeline.
package market

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks a bar that violates the store's structural
	// invariants (bad key shape or inconsistent OHLC values).
	ErrValidation = errors.New("invalid bar")

	// ErrInvalidRequest marks a series request that cannot be generated.
	ErrInvalidRequest = errors.New("invalid series request")
)

// Granularity discriminates daily from hourly rows in the uniqueness key.
type Granularity string

const (
	Daily  Granularity = "daily"
	Hourly Granularity = "hourly"
)

// ParseGranularity parses "daily" or "hourly".
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "day", "1d":
		return Daily, nil
	case "hourly", "hour", "1h":
		return Hourly, nil
	default:
		return "", fmt.Errorf("unknown granularity: %s", s)
	}
}

// Bar is one OHLCV record for a symbol. TradingDay is a UTC midnight
// date; Timestamp is nil for daily bars and set for hourly bars.
type Bar struct {
	Symbol        string
	TradingDay    time.Time
	Timestamp     *time.Time
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	AdjustedClose decimal.Decimal
	Volume        int64
}

// Key is the uniqueness key of a stored bar. BarTime equals TradingDay
// for daily rows so that no key column is ever NULL.
type Key struct {
	Symbol      string
	TradingDay  time.Time
	Granularity Granularity
	BarTime     time.Time
}

// Granularity reports whether the bar is daily or hourly.
func (b Bar) Granularity() Granularity {
	if b.Timestamp == nil {
		return Daily
	}
	return Hourly
}

// BarTime returns the non-null time used in the storage key.
func (b Bar) BarTime() time.Time {
	if b.Timestamp == nil {
		return b.TradingDay.UTC()
	}
	return b.Timestamp.UTC()
}

// Key returns the bar's uniqueness key.
func (b Bar) Key() Key {
	return Key{
		Symbol:      b.Symbol,
		TradingDay:  b.TradingDay.UTC(),
		Granularity: b.Granularity(),
		BarTime:     b.BarTime(),
	}
}

// String renders the key for logs.
func (k Key) String() string {
	if k.Granularity == Daily {
		return fmt.Sprintf("%s/%s", k.Symbol, k.TradingDay.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s/%s", k.Symbol, k.BarTime.Format("2006-01-02T15:04Z"))
}

// Validate checks the structural invariants a stored bar must satisfy.
func (b Bar) Validate() error {
	if strings.TrimSpace(b.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrValidation)
	}
	if b.TradingDay.IsZero() || !b.TradingDay.Equal(Day(b.TradingDay)) {
		return fmt.Errorf("%w: %s trading day %s has a time component",
			ErrValidation, b.Symbol, b.TradingDay.Format(time.RFC3339))
	}
	if b.Timestamp != nil {
		ts := b.Timestamp.UTC()
		if ts.Before(b.TradingDay) || !ts.Before(b.TradingDay.AddDate(0, 0, 1)) {
			return fmt.Errorf("%w: %s timestamp %s outside trading day %s",
				ErrValidation, b.Symbol, ts.Format(time.RFC3339), b.TradingDay.Format(time.DateOnly))
		}
	}
	if !b.Open.IsPositive() || !b.Close.IsPositive() || !b.Low.IsPositive() {
		return fmt.Errorf("%w: %s non-positive price", ErrValidation, b.Key())
	}
	if b.Low.GreaterThan(decimal.Min(b.Open, b.Close)) {
		return fmt.Errorf("%w: %s low %s above min(open, close)", ErrValidation, b.Key(), b.Low)
	}
	if b.High.LessThan(decimal.Max(b.Open, b.Close)) {
		return fmt.Errorf("%w: %s high %s below max(open, close)", ErrValidation, b.Key(), b.High)
	}
	if b.Low.GreaterThan(b.High) {
		return fmt.Errorf("%w: %s low above high", ErrValidation, b.Key())
	}
	if b.Volume < 0 {
		return fmt.Errorf("%w: %s negative volume", ErrValidation, b.Key())
	}
	return nil
}

// Day truncates t to its UTC calendar date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date as a UTC trading day.
func ParseDay(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}
