package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

var (
	statusChunks bool
	statusRuns   int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bar table's lifecycle state, size and recent runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusChunks, "chunks", false,
		"list every chunk")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5,
		"number of recent ingestion runs to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	pool, tbl, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	lc := store.NewLifecycle(pool, tbl, storePolicy())
	st, err := lc.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Table:             %s\n", tbl.Name())
	fmt.Fprintf(out, "State:             %s\n", st.State)
	if st.State == store.Uninitialized {
		fmt.Fprintln(out, "\nRun 'pgedge-marketgen init' to create the table.")
		return nil
	}
	fmt.Fprintf(out, "Rows:              %d\n", st.Rows)
	fmt.Fprintf(out, "Symbols:           %d\n", st.Symbols)
	fmt.Fprintf(out, "Size:              %s\n", store.FormatSize(st.TotalBytes))
	if st.State >= store.PartitionedUncompressed {
		fmt.Fprintf(out, "Chunks:            %d (%d compressed)\n", st.Chunks, st.CompressedChunks)
	}
	if st.AfterCompressionBytes > 0 {
		fmt.Fprintf(out, "Compression:       %s -> %s (%.1fx)\n",
			store.FormatSize(st.BeforeCompressionBytes),
			store.FormatSize(st.AfterCompressionBytes),
			st.CompressionRatio())
	}

	hasMeta, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return err
	}
	if hasMeta {
		meta, err := db.GetAllMetadata(ctx, pool)
		if err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}
		if len(meta) > 0 {
			fmt.Fprintf(out, "Initialized:       %s (version %s)\n", meta[db.KeyInitializedAt], meta[db.KeyVersion])
		}
	} else {
		logging.Debug().Msg("No metadata table")
	}

	if statusChunks {
		chunks, err := lc.Chunks(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "\nChunks:")
		for _, c := range chunks {
			mark := " "
			if c.Compressed {
				mark = "C"
			}
			fmt.Fprintf(out, "  [%s] %s.%s  %s .. %s\n", mark, c.Schema, c.Name,
				c.RangeStart.UTC().Format(time.DateOnly), c.RangeEnd.UTC().Format(time.DateOnly))
		}
	}

	if statusRuns > 0 {
		runs, err := store.NewRunLog(pool).Recent(ctx, statusRuns)
		if err != nil {
			return err
		}
		if len(runs) > 0 {
			fmt.Fprintln(out, "\nRecent runs:")
			for _, r := range runs {
				state := "ok"
				switch {
				case r.Cancelled:
					state = "cancelled"
				case r.Errors > 0:
					state = fmt.Sprintf("%d errors", r.Errors)
				}
				fmt.Fprintf(out, "  %s  %s  %-9s %-4s %d/%d symbols, %d inserted, %d updated, %s\n",
					r.StartedAt.Local().Format(time.DateTime), r.RunID, r.Source, r.Horizon,
					r.Processed, r.Symbols, r.Inserted, r.Updated, state)
			}
		}
	}
	return nil
}
