package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/datagen"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

var reference = time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

func newTestOrchestrator(src SeriesSource, w *store.MemoryWriter, cfg Config) *Orchestrator {
	return NewOrchestrator(src, store.NewUpserter(w, store.DefaultUpsertConfig()), cfg)
}

// funcSource adapts a function to SeriesSource.
type funcSource struct {
	name string
	fn   func(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error)
}

func (f funcSource) Name() string { return f.name }

func (f funcSource) Series(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
	return f.fn(ctx, req)
}

func TestRunSynthetic(t *testing.T) {
	w := store.NewMemoryWriter()
	src := datagen.NewSyntheticSource(nil, 42, reference)
	o := newTestOrchestrator(src, w, Config{GroupSize: 1, Concurrency: 2})

	var done atomic.Int32
	o.OnUnitDone = func(UnitResult) { done.Add(1) }

	sum := o.Run(context.Background(), []string{"AAPL", "msft", " AAPL "}, market.SeriesRequest{
		Horizon: market.NewTradingDaysHorizon(30),
	})

	assert.NotEqual(t, uuid.Nil, sum.RunID)
	assert.Equal(t, "synthetic", sum.Source)
	assert.Equal(t, 2, sum.Symbols)
	assert.Equal(t, 2, sum.Processed)
	assert.EqualValues(t, 60, sum.TotalInserted)
	assert.Zero(t, sum.Errors)
	assert.Empty(t, sum.Failures)
	assert.False(t, sum.Cancelled)
	assert.EqualValues(t, 2, done.Load())
	assert.Len(t, w.Bars("MSFT"), 30)

	again := o.Run(context.Background(), []string{"AAPL", "MSFT"}, market.SeriesRequest{
		Horizon: market.NewTradingDaysHorizon(30),
	})
	assert.Zero(t, again.TotalInserted)
	assert.EqualValues(t, 60, again.TotalUpdated)
	assert.Equal(t, 60, w.Len())
}

func TestRunAccumulatesFailures(t *testing.T) {
	synthetic := datagen.NewSyntheticSource(nil, 7, reference)
	boom := errors.New("provider said no")
	src := funcSource{name: "mixed", fn: func(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
		if req.Symbol == "BAD" {
			return nil, boom
		}
		return synthetic.Series(ctx, req)
	}}

	w := store.NewMemoryWriter()
	o := newTestOrchestrator(src, w, Config{GroupSize: 10, Concurrency: 3})
	sum := o.Run(context.Background(), []string{"AAPL", "BAD", "SPY"}, market.SeriesRequest{
		Horizon: market.NewTradingDaysHorizon(5),
	})

	assert.Equal(t, 3, sum.Processed)
	assert.EqualValues(t, 10, sum.TotalInserted)
	assert.Equal(t, 1, sum.Errors)
	require.Contains(t, sum.Failures, "BAD")
	assert.ErrorIs(t, sum.Failures["BAD"], boom)
}

func TestRunCountsInvalidRows(t *testing.T) {
	synthetic := datagen.NewSyntheticSource(nil, 7, reference)
	src := funcSource{name: "broken", fn: func(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
		bars, err := synthetic.Series(ctx, req)
		if err == nil && len(bars) > 0 {
			bars[0].Volume = -1
		}
		return bars, err
	}}

	w := store.NewMemoryWriter()
	sum := newTestOrchestrator(src, w, DefaultConfig()).Run(context.Background(), []string{"AAPL"},
		market.SeriesRequest{Horizon: market.NewTradingDaysHorizon(5)})

	assert.EqualValues(t, 4, sum.TotalInserted)
	assert.Equal(t, 1, sum.Errors)
	assert.ErrorIs(t, sum.Failures["AAPL"], market.ErrValidation)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
	)
	src := funcSource{name: "slow", fn: func(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
		mu.Lock()
		active++
		maxSeen = max(maxSeen, active)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	}}

	symbols := []string{"A", "B", "C", "D", "E", "F", "G", "H"}
	sum := newTestOrchestrator(src, store.NewMemoryWriter(), Config{GroupSize: 4, Concurrency: 2}).
		Run(context.Background(), symbols, market.SeriesRequest{Horizon: market.NewTradingDaysHorizon(1)})

	assert.Equal(t, len(symbols), sum.Processed)
	assert.LessOrEqual(t, maxSeen, 2)
}

func TestRunCancelledBetweenUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	synthetic := datagen.NewSyntheticSource(nil, 1, reference)
	src := funcSource{name: "synthetic", fn: func(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
		defer cancel()
		return synthetic.Series(ctx, req)
	}}

	w := store.NewMemoryWriter()
	sum := newTestOrchestrator(src, w, Config{GroupSize: 2, Concurrency: 1}).
		Run(ctx, []string{"AAPL", "MSFT", "SPY", "QQQ"}, market.SeriesRequest{Horizon: market.NewTradingDaysHorizon(5)})

	assert.True(t, sum.Cancelled)
	assert.Equal(t, 1, sum.Processed)
	assert.Equal(t, 1, sum.Errors, "the in-flight unit stops before its first batch")
	assert.Zero(t, w.Len())
}

func TestIngestRequest(t *testing.T) {
	u, err := datagen.NewUniverse([]datagen.Asset{
		{Symbol: "AAPL", Class: market.Equity, SeedPrice: 190},
		{Symbol: "X:BTCUSD", Class: market.Crypto, SeedPrice: 60000},
	})
	require.NoError(t, err)

	w := store.NewMemoryWriter()
	o := newTestOrchestrator(datagen.NewSyntheticSource(u, 3, reference), w, DefaultConfig())

	sum, err := o.Ingest(context.Background(), Request{Horizon: "7D"}, u, reference)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Processed)
	assert.EqualValues(t, 14, sum.TotalInserted)

	_, err = o.Ingest(context.Background(), Request{Horizon: "2W"}, u, reference)
	require.ErrorIs(t, err, market.ErrInvalidRequest)

	_, err = o.Ingest(context.Background(), Request{Horizon: "1M"}, nil, reference)
	require.ErrorIs(t, err, market.ErrInvalidRequest)
}

func TestRequestTargets(t *testing.T) {
	u, err := datagen.NewUniverse([]datagen.Asset{
		{Symbol: "AAPL", Class: market.Equity, SeedPrice: 190},
		{Symbol: "X:BTCUSD", Class: market.Crypto, SeedPrice: 60000},
	})
	require.NoError(t, err)

	req := Request{Symbols: []string{"aapl", " AAPL", "msft", ""}, Horizon: "7D"}
	assert.Equal(t, []string{"AAPL", "MSFT"}, req.Targets(u))
	assert.Equal(t, []string{"AAPL", "X:BTCUSD"}, Request{}.Targets(u))
	assert.Empty(t, Request{}.Targets(nil))

	// Progress is sized from Targets, so it must match what a run schedules.
	var done atomic.Int64
	o := newTestOrchestrator(datagen.NewSyntheticSource(u, 3, reference), store.NewMemoryWriter(), DefaultConfig())
	o.OnUnitDone = func(UnitResult) { done.Add(1) }
	sum, err := o.Ingest(context.Background(), req, u, reference)
	require.NoError(t, err)
	assert.Equal(t, len(req.Targets(u)), sum.Symbols)
	assert.EqualValues(t, len(req.Targets(u)), done.Load())
}

type recorderFunc func(ctx context.Context, r store.RunRecord) error

func (f recorderFunc) Record(ctx context.Context, r store.RunRecord) error { return f(ctx, r) }

func TestRecord(t *testing.T) {
	sum := Summary{
		RunID:         uuid.New(),
		Source:        "synthetic",
		Symbols:       2,
		Processed:     2,
		TotalInserted: 10,
		Errors:        1,
		Failures:      map[string]error{"BAD": errors.New("boom")},
		StartedAt:     reference,
		Duration:      time.Minute,
	}

	var got store.RunRecord
	err := Record(context.Background(), recorderFunc(func(_ context.Context, r store.RunRecord) error {
		got = r
		return nil
	}), sum, "1M", true)
	require.NoError(t, err)

	assert.Equal(t, sum.RunID, got.RunID)
	assert.Equal(t, reference.Add(time.Minute), got.FinishedAt)
	assert.Equal(t, "boom", got.Failures["BAD"])
	assert.True(t, got.Intraday)
	assert.EqualValues(t, 10, got.Inserted)
}
