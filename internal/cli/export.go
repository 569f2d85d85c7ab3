package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/export"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

var (
	exportSymbols     []string
	exportFrom        string
	exportTo          string
	exportGranularity string
	exportFormat      string
	exportDir         string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export stored bars to CSV, JSON or Parquet files",
	Long: `Read bars for each symbol over a date range and write one file per
symbol into --dir.

Example:
  pgedge-marketgen export --symbols AAPL,SPY --from 2025-01-01 --format parquet --dir out`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringSliceVar(&exportSymbols, "symbols", nil,
		"symbols to export (default: every stored symbol)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "",
		"first trading day, YYYY-MM-DD (default: one year before --to)")
	exportCmd.Flags().StringVar(&exportTo, "to", "",
		"last trading day, YYYY-MM-DD (default: today)")
	exportCmd.Flags().StringVar(&exportGranularity, "granularity", "daily",
		"daily or hourly")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv",
		"output format: csv, json, parquet")
	exportCmd.Flags().StringVar(&exportDir, "dir", ".",
		"output directory")
}

func runExport(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	saver, err := export.NewSaver(exportFormat)
	if err != nil {
		return err
	}
	g, err := market.ParseGranularity(exportGranularity)
	if err != nil {
		return err
	}

	to := market.Day(time.Now())
	if exportTo != "" {
		if to, err = market.ParseDay(exportTo); err != nil {
			return err
		}
	}
	from := to.AddDate(-1, 0, 0)
	if exportFrom != "" {
		if from, err = market.ParseDay(exportFrom); err != nil {
			return err
		}
	}
	if from.After(to) {
		return fmt.Errorf("--from %s is after --to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	if err := os.MkdirAll(exportDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", exportDir, err)
	}

	ctx := context.Background()
	pool, tbl, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	reader := store.NewReader(pool, tbl)
	symbols := exportSymbols
	if len(symbols) == 0 {
		if symbols, err = reader.Symbols(ctx); err != nil {
			return err
		}
	}

	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		stored, err := reader.Count(ctx, symbol)
		if err != nil {
			return err
		}
		if stored == 0 {
			logging.Warn().Str("symbol", symbol).Msg("No stored bars, skipping")
			continue
		}
		bars, err := reader.Range(ctx, symbol, from, to, g)
		if err != nil {
			return err
		}
		path := filepath.Join(exportDir, fileName(symbol, g, saver.Extension()))
		if err := saver.Save(export.Records(bars), path); err != nil {
			return err
		}
		logging.Info().
			Str("symbol", symbol).
			Int("bars", len(bars)).
			Str("file", path).
			Msg("Exported bars")
	}
	return nil
}

// fileName maps a symbol to a file name; provider prefixes such as
// "X:" are not valid on every filesystem.
func fileName(symbol string, g market.Granularity, ext string) string {
	safe := strings.NewReplacer(":", "_", "/", "_", "\\", "_").Replace(symbol)
	return fmt.Sprintf("%s_%s.%s", safe, g, ext)
}
