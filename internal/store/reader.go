package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// Reader serves per-symbol, time-ordered range scans.
type Reader struct {
	conn  db.DB
	table Table
}

// NewReader creates a reader for table.
func NewReader(conn db.DB, table Table) *Reader {
	return &Reader{conn: conn, table: table}
}

// Range returns bars of one granularity with trading_day in [from, to],
// oldest first.
func (r *Reader) Range(ctx context.Context, symbol string, from, to time.Time, g market.Granularity) ([]market.Bar, error) {
	rows, err := r.conn.Query(ctx, fmt.Sprintf(`
        SELECT symbol, trading_day, bar_time,
               open::text, high::text, low::text, close::text,
               COALESCE(adjusted_close, close)::text, volume
        FROM %s
        WHERE symbol = $1 AND granularity = $2
          AND trading_day BETWEEN $3 AND $4
        ORDER BY trading_day, bar_time
    `, r.table.Ident()), symbol, string(g), market.Day(from), market.Day(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars: %w", err)
	}
	defer rows.Close()

	var bars []market.Bar
	for rows.Next() {
		var (
			b                    market.Bar
			barTime              time.Time
			open, high, low, cls string
			adj                  string
		)
		if err := rows.Scan(&b.Symbol, &b.TradingDay, &barTime, &open, &high, &low, &cls, &adj, &b.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		b.TradingDay = market.Day(b.TradingDay)
		if g == market.Hourly {
			ts := barTime.UTC()
			b.Timestamp = &ts
		}
		if err := parsePrices(&b, open, high, low, cls, adj); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Symbols lists the distinct symbols in the table.
func (r *Reader) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx, fmt.Sprintf(`SELECT DISTINCT symbol FROM %s ORDER BY symbol`, r.table.Ident()))
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// Count returns the number of rows stored for symbol.
func (r *Reader) Count(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := r.conn.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s WHERE symbol = $1`, r.table.Ident()), symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars: %w", err)
	}
	return n, nil
}

func parsePrices(b *market.Bar, open, high, low, cls, adj string) error {
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&b.Open, open}, {&b.High, high}, {&b.Low, low}, {&b.Close, cls}, {&b.AdjustedClose, adj},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return fmt.Errorf("invalid price %q for %s: %w", f.src, b.Key(), err)
		}
		*f.dst = d
	}
	return nil
}

func sortBars(bars []market.Bar) {
	slices.SortFunc(bars, func(a, b market.Bar) int {
		if c := a.TradingDay.Compare(b.TradingDay); c != 0 {
			return c
		}
		if c := a.BarTime().Compare(b.BarTime()); c != 0 {
			return c
		}
		if a.Granularity() == b.Granularity() {
			return 0
		}
		if a.Granularity() == market.Daily {
			return -1
		}
		return 1
	})
}
