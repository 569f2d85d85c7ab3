package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

// SymbolLister lists the known symbols.
type SymbolLister interface {
	Symbols() []string
}

// Request is what a caller asks of an ingestion run.
type Request struct {
	// Symbols to ingest; empty means every known symbol.
	Symbols []string

	// Horizon is a named horizon such as "1M" or "YTD".
	Horizon string

	Intraday     bool
	IntradayDays int
}

// Targets returns the symbols a run will schedule: the requested ones, or
// every known symbol, trimmed, upper-cased and de-duplicated.
func (r Request) Targets(known SymbolLister) []string {
	symbols := r.Symbols
	if len(symbols) == 0 && known != nil {
		symbols = known.Symbols()
	}
	return uniqueSymbols(symbols)
}

func (r Request) resolve(known SymbolLister, reference time.Time) (market.SeriesRequest, []string, error) {
	h, err := market.ParseHorizon(r.Horizon, reference)
	if err != nil {
		return market.SeriesRequest{}, nil, err
	}
	if r.IntradayDays < 0 {
		return market.SeriesRequest{}, nil, fmt.Errorf("%w: negative intraday days %d", market.ErrInvalidRequest, r.IntradayDays)
	}

	symbols := r.Targets(known)
	if len(symbols) == 0 {
		return market.SeriesRequest{}, nil, fmt.Errorf("%w: no symbols to ingest", market.ErrInvalidRequest)
	}

	return market.SeriesRequest{
		Horizon:         h,
		IncludeIntraday: r.Intraday,
		IntradayDays:    r.IntradayDays,
	}, symbols, nil
}

// RunRecorder persists finished runs.
type RunRecorder interface {
	Record(ctx context.Context, r store.RunRecord) error
}

// Record converts sum into a run record and stores it.
func Record(ctx context.Context, rec RunRecorder, sum Summary, horizon string, intraday bool) error {
	failures := make(map[string]string, len(sum.Failures))
	for symbol, err := range sum.Failures {
		failures[symbol] = err.Error()
	}
	return rec.Record(ctx, store.RunRecord{
		RunID:      sum.RunID,
		StartedAt:  sum.StartedAt.UTC(),
		FinishedAt: sum.StartedAt.Add(sum.Duration).UTC(),
		Source:     sum.Source,
		Horizon:    horizon,
		Intraday:   intraday,
		Symbols:    sum.Symbols,
		Processed:  sum.Processed,
		Inserted:   sum.TotalInserted,
		Updated:    sum.TotalUpdated,
		Errors:     sum.Errors,
		Cancelled:  sum.Cancelled,
		Failures:   failures,
	})
}
