package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

var firstDay = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// dailyBars builds n consecutive daily bars starting offset days after
// firstDay, priced around base.
func dailyBars(symbol string, offset, n int, base float64) []market.Bar {
	bars := make([]market.Bar, 0, n)
	for i := range n {
		p := decimal.NewFromFloat(base + float64(i)).Round(2)
		bars = append(bars, market.Bar{
			Symbol:        symbol,
			TradingDay:    firstDay.AddDate(0, 0, offset+i),
			Open:          p,
			High:          p.Add(decimal.NewFromInt(1)),
			Low:           p.Sub(decimal.NewFromInt(1)),
			Close:         p,
			AdjustedClose: p,
			Volume:        1000,
		})
	}
	return bars
}

func fastConfig(batch int) UpsertConfig {
	return UpsertConfig{BatchSize: batch, RetryBackoff: time.Millisecond, MaxRetries: 1}
}

func TestUpsertOverlappingSeries(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(100))

	res, err := u.Upsert(ctx, "AAPL", dailyBars("AAPL", 0, 5, 100))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, 0, res.Updated)

	second := dailyBars("AAPL", 2, 5, 200)
	res, err = u.Upsert(ctx, "AAPL", second)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, res.Updated)
	assert.Zero(t, res.ErrorCount())

	assert.Equal(t, 7, w.Len())
	for _, b := range second {
		got, ok := w.Get(b.Key())
		require.True(t, ok)
		assert.True(t, got.Close.Equal(b.Close), "row %s holds latest close", b.Key())
	}
}

func TestUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(2))
	bars := dailyBars("MSFT", 0, 5, 300)

	_, err := u.Upsert(ctx, "MSFT", bars)
	require.NoError(t, err)
	before := w.Bars("MSFT")

	res, err := u.Upsert(ctx, "MSFT", bars)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 5, res.Updated)
	assert.Equal(t, before, w.Bars("MSFT"))
}

func TestUpsertDropsInvalidRows(t *testing.T) {
	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(100))

	bars := dailyBars("AAPL", 0, 4, 100)
	bars[1].Low = bars[1].Open.Add(decimal.NewFromInt(5))
	bars[2].Symbol = "MSFT"

	res, err := u.Upsert(context.Background(), "AAPL", bars)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, res.Invalid)
	assert.Equal(t, 2, res.ErrorCount())
	assert.ErrorIs(t, res.Err(), ErrValidation)
	assert.Equal(t, 2, w.Len())
}

func TestUpsertDeduplicatesInput(t *testing.T) {
	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(100))

	bars := dailyBars("AAPL", 0, 3, 100)
	dup := bars[0]
	dup.Close = dup.High
	dup.AdjustedClose = dup.High
	bars = append(bars, dup)

	res, err := u.Upsert(context.Background(), "AAPL", bars)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, w.Calls())

	got, ok := w.Get(dup.Key())
	require.True(t, ok)
	assert.True(t, got.Close.Equal(dup.High))
}

func TestUpsertRetriesTransientFailure(t *testing.T) {
	w := NewMemoryWriter()
	w.FailNext(&pgconn.PgError{Code: "40001", Message: "serialization failure"})
	u := NewUpserter(w, fastConfig(100))

	res, err := u.Upsert(context.Background(), "AAPL", dailyBars("AAPL", 0, 3, 100))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Zero(t, res.FailedBatches)
	assert.Equal(t, 2, w.Calls())
}

func TestUpsertRetriesOnlyOnce(t *testing.T) {
	transient := &pgconn.PgError{Code: "08006", Message: "connection failure"}
	w := NewMemoryWriter()
	w.FailNext(transient, transient)
	u := NewUpserter(w, fastConfig(2))

	res, err := u.Upsert(context.Background(), "AAPL", dailyBars("AAPL", 0, 4, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 3, w.Calls())

	var be *BatchError
	require.ErrorAs(t, res.Err(), &be)
	assert.Equal(t, 0, be.Batch)
	assert.ErrorIs(t, be, ErrTransient)
}

func TestUpsertContinuesAfterPermanentFailure(t *testing.T) {
	w := NewMemoryWriter()
	w.FailNext(&pgconn.PgError{Code: "23514", Message: "check violation"})
	u := NewUpserter(w, fastConfig(2))

	res, err := u.Upsert(context.Background(), "AAPL", dailyBars("AAPL", 0, 6, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, res.FailedBatches)
	assert.Equal(t, 4, res.Inserted)
	assert.Equal(t, 3, w.Calls(), "validation failures are not retried")
	assert.ErrorIs(t, res.Err(), ErrValidation)
}

func TestUpsertCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(2))

	_, err := u.Upsert(ctx, "AAPL", dailyBars("AAPL", 0, 4, 100))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, w.Len())
}

func TestUpsertHourlyAndDailyKeysDistinct(t *testing.T) {
	w := NewMemoryWriter()
	u := NewUpserter(w, fastConfig(100))

	daily := dailyBars("X:BTCUSD", 0, 1, 60000)[0]
	hourly := daily
	ts := daily.TradingDay
	hourly.Timestamp = &ts

	res, err := u.Upsert(context.Background(), "X:BTCUSD", []market.Bar{daily, hourly})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, w.Len())
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"serialization", &pgconn.PgError{Code: "40001"}, ErrTransient},
		{"connection", &pgconn.PgError{Code: "08006"}, ErrTransient},
		{"too many connections", &pgconn.PgError{Code: "53300"}, ErrTransient},
		{"admin shutdown", &pgconn.PgError{Code: "57P01"}, ErrTransient},
		{"check violation", &pgconn.PgError{Code: "23514"}, ErrValidation},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, ErrValidation},
		{"unexpected eof", io.ErrUnexpectedEOF, ErrTransient},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, nil},
		{"plain", errBoom, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if tt.want == nil {
				assert.Equal(t, tt.err, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}

	assert.Nil(t, ClassifyError(nil))
	assert.Equal(t, context.Canceled, ClassifyError(context.Canceled))
	assert.False(t, IsTransient(&pgconn.PgError{Code: "42P01"}))
	assert.True(t, IsTransient(fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "08003"})))
}

var errBoom = errors.New("boom")

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "transient", failureKind(&pgconn.PgError{Code: "08006"}))
	assert.Equal(t, "transient", failureKind(fmt.Errorf("%w: reset", ErrTransient)))
	assert.Equal(t, "validation", failureKind(&pgconn.PgError{Code: "23514"}))
	assert.Equal(t, "other", failureKind(errBoom))
}

func TestUpserterLogsAsComponent(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.ConfigFor("info", "json")
	cfg.Output = &buf
	logging.Init(cfg)
	defer logging.Init(logging.DefaultConfig())

	b := dailyBars("AAPL", 0, 1, 100)
	b[0].Volume = -1
	res, err := NewUpserter(NewMemoryWriter(), fastConfig(10)).Upsert(context.Background(), "AAPL", b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Invalid)
	assert.Contains(t, buf.String(), `"component":"upsert"`)
}
