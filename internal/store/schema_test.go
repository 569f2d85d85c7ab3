package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTable(t *testing.T) {
	tests := []struct {
		name      string
		wantErr   bool
		wantIdent string
	}{
		{"bars", false, `"bars"`},
		{"market.daily_bars", false, `"market"."daily_bars"`},
		{"Bars", true, ""},
		{"bars; drop table x", true, ""},
		{"a.b.c", true, ""},
		{"", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := NewTable(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIdent, tbl.Ident())
			assert.Equal(t, tt.name, tbl.Name())
		})
	}
}

func TestUpsertSQL(t *testing.T) {
	sql := upsertSQL(MustTable("bars"), 2)

	assert.Contains(t, sql, `INSERT INTO "bars" (symbol, trading_day, granularity, bar_time,`)
	assert.Contains(t, sql, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11,")
	assert.Contains(t, sql, "$20)")
	assert.NotContains(t, sql, "$21")
	assert.Contains(t, sql, "ON CONFLICT (symbol, trading_day, granularity, bar_time) DO UPDATE")
	assert.Contains(t, sql, "RETURNING (xmax = 0)")
}

func TestCreateTableSQL(t *testing.T) {
	sql := createTableSQL(MustTable("market.bars"))

	assert.Contains(t, sql, `CREATE TABLE IF NOT EXISTS "market"."bars"`)
	assert.Contains(t, sql, "PRIMARY KEY (symbol, trading_day, granularity, bar_time)")
	assert.Contains(t, sql, "NUMERIC(18,8)")

	idx := createSymbolIndexSQL(MustTable("market.bars"))
	assert.Contains(t, idx, `"bars_symbol_time_idx" ON "market"."bars"`)
}

func TestLegacyColumnsSQL(t *testing.T) {
	plain := legacyColumnsSQL(MustTable("bars"), false)
	withTS := legacyColumnsSQL(MustTable("bars"), true)

	assert.Len(t, withTS, len(plain)+1)
	assert.False(t, strings.Contains(strings.Join(plain, ";"), `"timestamp"`))
	assert.Contains(t, strings.Join(withTS, ";"), `granularity = 'hourly'`)
}

func TestDedupeKeySQL(t *testing.T) {
	sql := dedupeKeySQL(MustTable("market.bars"))
	assert.Contains(t, sql, `DELETE FROM "market"."bars"`)
	assert.Contains(t, sql, "PARTITION BY "+keyColumns)
	assert.Contains(t, sql, "ORDER BY updated_at DESC, ctid DESC")
	assert.Contains(t, sql, "rn > 1")
}

func TestCompressionSettingsCoverKey(t *testing.T) {
	sql := compressionSettingsSQL(MustTable("bars"))
	assert.Contains(t, sql, "compress_segmentby = 'symbol'")
	assert.Contains(t, sql, "compress_orderby = 'trading_day DESC, granularity, bar_time DESC'")
	for _, col := range strings.Split(keyColumns, ", ") {
		assert.Contains(t, sql, col)
	}
}

func TestParseState(t *testing.T) {
	for _, s := range []State{Uninitialized, FlatTable, PartitionedUncompressed, PartitionedWithCompressionPolicy} {
		got, err := ParseState(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseState("archived")
	assert.Error(t, err)
	assert.Less(t, FlatTable, PartitionedWithCompressionPolicy)
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.bytes))
	}

	assert.Zero(t, Stats{}.CompressionRatio())
	assert.InDelta(t, 4.0, Stats{BeforeCompressionBytes: 400, AfterCompressionBytes: 100}.CompressionRatio(), 1e-9)
}
