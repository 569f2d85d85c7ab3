package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/config"
	"github.com/pgEdge/pgedge-marketgen/internal/datagen"
	"github.com/pgEdge/pgedge-marketgen/internal/ingest"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/metrics"
	"github.com/pgEdge/pgedge-marketgen/internal/provider"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

var (
	ingestSymbols        []string
	ingestSource         string
	ingestHorizon        string
	ingestIntraday       bool
	ingestIntradayDays   int
	ingestGroupSize      int
	ingestConcurrency    int
	ingestBatchSize      int
	ingestSeed           uint64
	ingestUniverse       string
	ingestReferenceDate  string
	ingestReportInterval int
	ingestDryRun         bool
	ingestNoProgress     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Generate or fetch series and upsert them into the bar table",
	Long: `Build a series for every symbol and merge it into the bar table.
Symbols are processed in groups of --group-size with up to --concurrency
workers per group. A failing symbol is reported in the run summary and
does not stop the run. Ctrl+C stops the run between symbols.

Sources:
  synthetic - seedable random walk (default)
  provider  - external price provider, paced and retried

Horizons: 7D, 1M, 3M, 6M, YTD, 1Y, 3Y, 5Y, MAX

Example:
  pgedge-marketgen ingest --horizon 1Y --intraday
  pgedge-marketgen ingest --symbols AAPL,MSFT,X:BTCUSD --horizon 3M --seed 42
  pgedge-marketgen ingest --source provider --horizon 1M
  pgedge-marketgen ingest --dry-run --horizon MAX`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringSliceVar(&ingestSymbols, "symbols", nil,
		"symbols to ingest (default: every symbol in the universe)")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "",
		"series source: synthetic or provider")
	ingestCmd.Flags().StringVar(&ingestHorizon, "horizon", "",
		"named horizon: 7D, 1M, 3M, 6M, YTD, 1Y, 3Y, 5Y, MAX")
	ingestCmd.Flags().BoolVar(&ingestIntraday, "intraday", false,
		"also ingest hourly bars for the most recent trading days")
	ingestCmd.Flags().IntVar(&ingestIntradayDays, "intraday-days", 0,
		"number of recent trading days with hourly bars (default: 5)")
	ingestCmd.Flags().IntVar(&ingestGroupSize, "group-size", 0,
		"symbols per group")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0,
		"concurrent symbols within a group")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0,
		"rows per upsert batch")
	ingestCmd.Flags().Uint64Var(&ingestSeed, "seed", 0,
		"random seed for reproducible synthetic series (0 = random)")
	ingestCmd.Flags().StringVar(&ingestUniverse, "universe", "",
		"YAML universe file (default: built-in universe)")
	ingestCmd.Flags().StringVar(&ingestReferenceDate, "reference-date", "",
		"last day of the series, YYYY-MM-DD (default: today)")
	ingestCmd.Flags().IntVar(&ingestReportInterval, "report-interval", 0,
		"progress reporting interval in seconds")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false,
		"generate and validate without writing to the database")
	ingestCmd.Flags().BoolVar(&ingestNoProgress, "no-progress", false,
		"disable the progress bar")
}

func applyIngestFlags() {
	in := &cfg.Ingest
	if ingestSource != "" {
		in.Source = ingestSource
	}
	if ingestHorizon != "" {
		in.Horizon = ingestHorizon
	}
	if ingestIntraday {
		in.Intraday = true
	}
	if ingestIntradayDays > 0 {
		in.IntradayDays = ingestIntradayDays
	}
	if ingestGroupSize > 0 {
		in.GroupSize = ingestGroupSize
	}
	if ingestConcurrency > 0 {
		in.Concurrency = ingestConcurrency
	}
	if ingestBatchSize > 0 {
		in.BatchSize = ingestBatchSize
	}
	if ingestSeed > 0 {
		in.Seed = ingestSeed
	}
	if ingestUniverse != "" {
		in.UniverseFile = ingestUniverse
	}
	if ingestReferenceDate != "" {
		in.ReferenceDate = ingestReferenceDate
	}
	if ingestReportInterval > 0 {
		in.ReportInterval = ingestReportInterval
	}
	if ingestDryRun {
		in.DryRun = true
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	applyIngestFlags()
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	reference, err := cfg.ReferenceDate()
	if err != nil {
		return err
	}
	if reference.IsZero() {
		reference = market.Day(time.Now())
	}

	universe, err := loadUniverse(cfg.Ingest.UniverseFile)
	if err != nil {
		return err
	}

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal, finishing in-flight symbols")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer metrics.Shutdown(srv)
	}

	var (
		writer store.BatchWriter
		runLog *store.RunLog
	)
	if cfg.Ingest.DryRun {
		writer = store.NewMemoryWriter()
		logging.Info().Msg("Dry run: bars are validated and merged in memory only")
	} else {
		pool, tbl, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		state, err := store.NewLifecycle(pool, tbl, storePolicy()).State(ctx)
		if err != nil {
			return err
		}
		if state == store.Uninitialized {
			return fmt.Errorf("table %s does not exist; run 'pgedge-marketgen init' first", tbl.Name())
		}
		writer = store.NewPGWriter(pool, tbl)
		runLog = store.NewRunLog(pool)
		if err := runLog.Init(ctx); err != nil {
			return err
		}
	}

	src := newSeriesSource(universe, reference)
	upserter := store.NewUpserter(writer, store.UpsertConfig{
		BatchSize:    cfg.Ingest.BatchSize,
		RetryBackoff: store.DefaultUpsertConfig().RetryBackoff,
		MaxRetries:   store.DefaultUpsertConfig().MaxRetries,
	})
	orch := ingest.NewOrchestrator(src, upserter, ingest.Config{
		GroupSize:      cfg.Ingest.GroupSize,
		Concurrency:    cfg.Ingest.Concurrency,
		ReportInterval: time.Duration(cfg.Ingest.ReportInterval) * time.Second,
	})

	req := ingest.Request{
		Symbols:      ingestSymbols,
		Horizon:      cfg.Ingest.Horizon,
		Intraday:     cfg.Ingest.Intraday,
		IntradayDays: cfg.Ingest.IntradayDays,
	}

	if !ingestNoProgress && cfg.LogFormat != "json" {
		bar := progressbar.Default(int64(len(req.Targets(universe))), "ingest")
		orch.OnUnitDone = func(ingest.UnitResult) { _ = bar.Add(1) }
		defer func() { _ = bar.Finish() }()
	}

	sum, err := orch.Ingest(ctx, req, universe, reference)
	if err != nil {
		return err
	}

	if runLog != nil {
		// The run context may be cancelled; record with a fresh one.
		recCtx, recCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer recCancel()
		if err := ingest.Record(recCtx, runLog, sum, cfg.Ingest.Horizon, cfg.Ingest.Intraday); err != nil {
			logging.Warn().Err(err).Msg("Failed to record ingestion run")
		}
	}

	printSummary(cmd, sum)
	return nil
}

// newSeriesSource picks the configured series source.
func newSeriesSource(universe *datagen.Universe, reference time.Time) ingest.SeriesSource {
	if cfg.Ingest.Source == config.SourceProvider {
		p := cfg.Provider
		fetcher := provider.NewFetcher(
			provider.NewHTTPSource(p.BaseURL, p.APIKey, p.Timeout()),
			provider.NewPacer(p.RequestDelay()),
			provider.FetcherConfig{MaxAttempts: p.MaxAttempts, Backoff: p.Backoff()},
		)
		return provider.NewSource(fetcher, p.PageSize, reference, universe)
	}
	return datagen.NewSyntheticSource(universe, cfg.Ingest.Seed, reference)
}

func loadUniverse(path string) (*datagen.Universe, error) {
	if path == "" {
		return datagen.DefaultUniverse(), nil
	}
	return datagen.LoadUniverse(path)
}

func printSummary(cmd *cobra.Command, sum ingest.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Run:        %s (%s)\n", sum.RunID, sum.Source)
	fmt.Fprintf(out, "Processed:  %d of %d symbols in %s\n", sum.Processed, sum.Symbols, sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "Inserted:   %d\n", sum.TotalInserted)
	fmt.Fprintf(out, "Updated:    %d\n", sum.TotalUpdated)
	fmt.Fprintf(out, "Errors:     %d\n", sum.Errors)
	if sum.Cancelled {
		fmt.Fprintln(out, "Status:     cancelled")
	}

	if len(sum.Failures) > 0 {
		symbols := make([]string, 0, len(sum.Failures))
		for s := range sum.Failures {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		fmt.Fprintln(out, "\nFailures:")
		for _, s := range symbols {
			fmt.Fprintf(out, "  %-10s %v\n", s, sum.Failures[s])
		}
	}
}
