package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
)

var compressOlderThan int

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress eligible chunks now instead of waiting for the policy",
	Long: `Compress every uncompressed chunk older than --older-than days. The
table must be in the 'compressed' lifecycle state.

Example:
  pgedge-marketgen compress --older-than 7`,
	RunE: runCompress,
}

func init() {
	compressCmd.Flags().IntVar(&compressOlderThan, "older-than", -1,
		"compress chunks older than this many days (default: compress_after_days)")
}

func runCompress(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	olderThan := compressOlderThan
	if olderThan < 0 {
		olderThan = cfg.Store.CompressAfterDays
	}

	ctx := context.Background()
	pool, tbl, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	start := time.Now()
	n, err := store.NewLifecycle(pool, tbl, storePolicy()).CompressNow(ctx, olderThan)
	if err != nil {
		return err
	}
	logging.Info().
		Str("table", tbl.Name()).
		Int("chunks", n).
		Dur("duration", time.Since(start)).
		Msg("Compression complete")
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}
