//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package store implements the partitioned, compressible bar store: its
// schema and lifecycle, the batch upserter and range reads.
package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

var identifierRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// Table names the bar table, optionally schema-qualified.
type Table struct {
	name string
}

// NewTable validates a table name such as "bars" or "market.bars".
func NewTable(name string) (Table, error) {
	if !identifierRe.MatchString(name) {
		return Table{}, fmt.Errorf("invalid table name %q", name)
	}
	return Table{name: name}, nil
}

// MustTable is NewTable for constant names.
func MustTable(name string) Table {
	t, err := NewTable(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the unquoted name, as accepted by to_regclass.
func (t Table) Name() string {
	return t.name
}

// Ident returns the quoted identifier for use in SQL text.
func (t Table) Ident() string {
	return pgx.Identifier(strings.Split(t.name, ".")).Sanitize()
}

func (t Table) String() string {
	return t.name
}

// keyColumns is the uniqueness key. bar_time is never NULL: daily rows
// store trading_day at 00:00 UTC.
const keyColumns = "symbol, trading_day, granularity, bar_time"

// barColumns is the insert column order used by the writer.
var barColumns = []string{
	"symbol", "trading_day", "granularity", "bar_time",
	"open", "high", "low", "close", "adjusted_close", "volume",
}

const dayStartUTC = `(trading_day::timestamp AT TIME ZONE 'UTC')`

func createTableSQL(t Table) string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
    symbol          TEXT          NOT NULL,
    trading_day     DATE          NOT NULL,
    granularity     TEXT          NOT NULL DEFAULT 'daily',
    bar_time        TIMESTAMPTZ   NOT NULL,
    open            NUMERIC(18,8) NOT NULL,
    high            NUMERIC(18,8) NOT NULL,
    low             NUMERIC(18,8) NOT NULL,
    close           NUMERIC(18,8) NOT NULL,
    adjusted_close  NUMERIC(18,8),
    volume          BIGINT        NOT NULL DEFAULT 0,
    updated_at      TIMESTAMPTZ   NOT NULL DEFAULT now(),
    PRIMARY KEY (%s),
    CHECK (granularity IN ('daily', 'hourly')),
    CHECK (CASE granularity
             WHEN 'daily' THEN bar_time = %s
             ELSE bar_time >= %s AND bar_time < %s + INTERVAL '1 day'
           END),
    CHECK (low <= LEAST(open, close) AND high >= GREATEST(open, close) AND low <= high),
    CHECK (volume >= 0)
)`, t.Ident(), keyColumns, dayStartUTC, dayStartUTC, dayStartUTC)
}

func createSymbolIndexSQL(t Table) string {
	base := t.name[strings.LastIndex(t.name, ".")+1:]
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (symbol, granularity, bar_time DESC)`,
		pgx.Identifier{base + "_symbol_time_idx"}.Sanitize(), t.Ident())
}

// legacyColumnsSQL brings a flat table created without the explicit
// granularity discriminator up to the current key shape. Tables keyed on
// a nullable "timestamp" column keep their hourly rows distinct.
func legacyColumnsSQL(t Table, hasTimestamp bool) []string {
	id := t.Ident()
	stmts := []string{
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS granularity TEXT NOT NULL DEFAULT 'daily'`, id),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS bar_time TIMESTAMPTZ`, id),
	}
	if hasTimestamp {
		stmts = append(stmts, fmt.Sprintf(
			`UPDATE %s SET granularity = 'hourly', bar_time = "timestamp" WHERE "timestamp" IS NOT NULL AND bar_time IS NULL`, id))
	}
	return append(stmts,
		fmt.Sprintf(`UPDATE %s SET bar_time = %s WHERE bar_time IS NULL`, id, dayStartUTC),
		fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN bar_time SET NOT NULL`, id),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now()`, id),
	)
}

// dedupeKeySQL deletes every row but the most recently written one of
// each key. Legacy tables that allowed several NULL-timestamp rows per day
// collapse to one daily row here.
func dedupeKeySQL(t Table) string {
	return fmt.Sprintf(`
DELETE FROM %[1]s WHERE ctid IN (
    SELECT ctid FROM (
        SELECT ctid, row_number() OVER (
            PARTITION BY %[2]s
            ORDER BY updated_at DESC, ctid DESC
        ) AS rn
        FROM %[1]s
    ) ranked
    WHERE rn > 1
)`, t.Ident(), keyColumns)
}

// compressionSettingsSQL segments by symbol and orders by the remaining
// key columns, so the key stays enforceable on compressed chunks.
func compressionSettingsSQL(t Table) string {
	return fmt.Sprintf(`
ALTER TABLE %s SET (
    timescaledb.compress,
    timescaledb.compress_segmentby = 'symbol',
    timescaledb.compress_orderby = 'trading_day DESC, granularity, bar_time DESC'
)`, t.Ident())
}

func upsertSQL(t Table, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", t.Ident(), strings.Join(barColumns, ", "))
	n := len(barColumns)
	for r := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := range n {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", r*n+c+1)
		}
		b.WriteByte(')')
	}
	fmt.Fprintf(&b, `
ON CONFLICT (%s) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    adjusted_close = EXCLUDED.adjusted_close,
    volume = EXCLUDED.volume,
    updated_at = now()
RETURNING (xmax = 0) AS inserted`, keyColumns)
	return b.String()
}
