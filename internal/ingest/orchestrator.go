//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package ingest drives series generation and upserts across many
// symbols with bounded groups and concurrency, accumulating per-symbol
// failures instead of aborting the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/metrics"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

// SeriesSource produces one symbol's bars, oldest first. Synthetic and
// provider-backed sources are chosen by configuration.
type SeriesSource interface {
	Name() string
	Series(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error)
}

// Upserter merges one symbol's bars into the store.
type Upserter interface {
	Upsert(ctx context.Context, symbol string, bars []market.Bar) (store.UpsertResult, error)
}

// Config holds orchestrator settings.
type Config struct {
	// GroupSize bounds how many symbols are in flight at once.
	GroupSize int

	// Concurrency bounds the workers within a group.
	Concurrency int

	// ReportInterval is the progress log period; zero disables it.
	ReportInterval time.Duration
}

// DefaultConfig returns default orchestrator settings.
func DefaultConfig() Config {
	return Config{GroupSize: 25, Concurrency: 4, ReportInterval: 10 * time.Second}
}

// UnitResult is the outcome of one symbol's unit of work.
type UnitResult struct {
	Symbol   string
	Bars     int
	Inserted int
	Updated  int
	Errors   int
	Err      error
	Duration time.Duration
}

// Summary is the outcome of a run. Per-symbol failures are reported
// here, never returned as errors.
type Summary struct {
	RunID         uuid.UUID
	Source        string
	Symbols       int
	Processed     int
	TotalInserted int64
	TotalUpdated  int64
	Errors        int

	// Failures maps a symbol to what went wrong with it.
	Failures  map[string]error
	Cancelled bool
	StartedAt time.Time
	Duration  time.Duration
}

// Orchestrator runs ingestion units.
type Orchestrator struct {
	source   SeriesSource
	upserter Upserter
	cfg      Config

	// OnUnitDone, if set, is called after every unit from the worker
	// goroutine that ran it.
	OnUnitDone func(UnitResult)

	log       zerolog.Logger
	processed atomic.Int64
	inserted  atomic.Int64
	updated   atomic.Int64
	errs      atomic.Int64
}

// NewOrchestrator creates an orchestrator reading from source and
// writing through upserter.
func NewOrchestrator(source SeriesSource, upserter Upserter, cfg Config) *Orchestrator {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultConfig().GroupSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{source: source, upserter: upserter, cfg: cfg, log: logging.Component("ingest")}
}

// Run ingests template for every symbol. Symbols are de-duplicated so no
// symbol is scheduled twice. Cancellation is checked before each unit;
// units already running finish their current batch.
func (o *Orchestrator) Run(ctx context.Context, symbols []string, template market.SeriesRequest) Summary {
	o.processed.Store(0)
	o.inserted.Store(0)
	o.updated.Store(0)
	o.errs.Store(0)

	symbols = uniqueSymbols(symbols)
	sum := Summary{
		RunID:     uuid.New(),
		Source:    o.source.Name(),
		Symbols:   len(symbols),
		Failures:  make(map[string]error),
		StartedAt: time.Now(),
	}

	o.log.Info().
		Str("run_id", sum.RunID.String()).
		Str("source", sum.Source).
		Str("horizon", template.Horizon.String()).
		Bool("intraday", template.IncludeIntraday).
		Int("symbols", len(symbols)).
		Int("group_size", o.cfg.GroupSize).
		Int("concurrency", o.cfg.Concurrency).
		Msg("Starting ingestion run")

	reportCtx, stopReport := context.WithCancel(ctx)
	var reporterDone sync.WaitGroup
	if o.cfg.ReportInterval > 0 {
		reporterDone.Add(1)
		go func() {
			defer reporterDone.Done()
			o.reporter(reportCtx, len(symbols))
		}()
	}

	var mu sync.Mutex
	for start := 0; start < len(symbols); start += o.cfg.GroupSize {
		if ctx.Err() != nil {
			break
		}
		group := symbols[start:min(start+o.cfg.GroupSize, len(symbols))]

		var g errgroup.Group
		g.SetLimit(o.cfg.Concurrency)
		for _, symbol := range group {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				req := template
				req.Symbol = symbol
				res := o.runUnit(ctx, req)

				mu.Lock()
				o.account(&sum, res)
				mu.Unlock()

				if o.OnUnitDone != nil {
					o.OnUnitDone(res)
				}
				return nil
			})
		}
		_ = g.Wait()

		o.log.Debug().
			Int("group_start", start).
			Int("group_size", len(group)).
			Msg("Finished symbol group")
	}

	stopReport()
	reporterDone.Wait()

	sum.Cancelled = ctx.Err() != nil
	sum.Duration = time.Since(sum.StartedAt)
	o.logSummary(sum)
	return sum
}

// Ingest is the entry point used by the CLI. An empty symbol list means
// every known symbol.
func (o *Orchestrator) Ingest(ctx context.Context, req Request, known SymbolLister, reference time.Time) (Summary, error) {
	template, symbols, err := req.resolve(known, reference)
	if err != nil {
		return Summary{}, err
	}
	return o.Run(ctx, symbols, template), nil
}

func (o *Orchestrator) runUnit(ctx context.Context, req market.SeriesRequest) UnitResult {
	start := time.Now()
	res := UnitResult{Symbol: req.Symbol}

	bars, err := o.source.Series(ctx, req)
	if err != nil {
		res.Err = fmt.Errorf("series for %s: %w", req.Symbol, err)
		res.Errors = 1
		res.Duration = time.Since(start)
		return res
	}
	res.Bars = len(bars)

	ur, err := o.upserter.Upsert(ctx, req.Symbol, bars)
	res.Inserted = ur.Inserted
	res.Updated = ur.Updated
	res.Errors = ur.ErrorCount()
	res.Err = ur.Err()
	if err != nil {
		res.Err = errors.Join(res.Err, err)
		if res.Errors == 0 {
			res.Errors = 1
		}
	}
	res.Duration = time.Since(start)
	return res
}

func (o *Orchestrator) account(sum *Summary, res UnitResult) {
	sum.Processed++
	sum.TotalInserted += int64(res.Inserted)
	sum.TotalUpdated += int64(res.Updated)
	sum.Errors += res.Errors

	o.processed.Add(1)
	o.inserted.Add(int64(res.Inserted))
	o.updated.Add(int64(res.Updated))
	o.errs.Add(int64(res.Errors))

	status := metrics.StatusOK
	switch {
	case res.Err != nil && (errors.Is(res.Err, context.Canceled) || errors.Is(res.Err, context.DeadlineExceeded)):
		status = metrics.StatusCancelled
	case res.Err != nil:
		status = metrics.StatusFailed
	}
	metrics.Units.WithLabelValues(o.source.Name(), status).Inc()

	if res.Err != nil {
		sum.Failures[res.Symbol] = res.Err
		o.log.Warn().
			Err(res.Err).
			Str("symbol", res.Symbol).
			Int("errors", res.Errors).
			Msg("Symbol ingestion had failures")
		return
	}
	o.log.Debug().
		Str("symbol", res.Symbol).
		Int("bars", res.Bars).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Dur("duration", res.Duration).
		Msg("Symbol ingested")
}

// reporter periodically logs progress.
func (o *Orchestrator) reporter(ctx context.Context, total int) {
	ticker := time.NewTicker(o.cfg.ReportInterval)
	defer ticker.Stop()

	var lastProcessed int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			processed := o.processed.Load()
			rate := float64(processed-lastProcessed) / now.Sub(lastTime).Seconds()

			o.log.Info().
				Int64("processed", processed).
				Int("total", total).
				Int64("inserted", o.inserted.Load()).
				Int64("updated", o.updated.Load()).
				Int64("errors", o.errs.Load()).
				Float64("symbols_per_sec", rate).
				Msg("Progress")

			lastProcessed = processed
			lastTime = now
		}
	}
}

func (o *Orchestrator) logSummary(sum Summary) {
	ev := o.log.Info()
	if sum.Errors > 0 || sum.Cancelled {
		ev = o.log.Warn()
	}
	ev.Str("run_id", sum.RunID.String()).
		Dur("duration", sum.Duration).
		Int("symbols", sum.Symbols).
		Int("processed", sum.Processed).
		Int64("inserted", sum.TotalInserted).
		Int64("updated", sum.TotalUpdated).
		Int("errors", sum.Errors).
		Int("failed_symbols", len(sum.Failures)).
		Bool("cancelled", sum.Cancelled).
		Msg("Ingestion run finished")
}

// uniqueSymbols trims, upper-cases and de-duplicates symbols, keeping
// first-seen order.
func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
