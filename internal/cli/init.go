package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
	"github.com/pgEdge/pgedge-marketgen/pkg/version"
)

var (
	initTargetState   string
	initChunkInterval int
	initCompressAfter int
	initDropExisting  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or migrate the bar table",
	Long: `Create the bar table and move it forward through its lifecycle:

  flat         - plain table keyed by (symbol, trading_day, granularity, bar_time)
  partitioned  - TimescaleDB hypertable partitioned by trading_day
  compressed   - hypertable with compression segmented by symbol and a
                 compression policy

Each step checks the current state first, so init is safe to re-run and
keeps existing rows. Moving backwards is refused.

Example:
  pgedge-marketgen init --target-state compressed --chunk-interval 30 --compress-after 7`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initTargetState, "target-state", "",
		"lifecycle state to migrate to: flat, partitioned, compressed")
	initCmd.Flags().IntVar(&initChunkInterval, "chunk-interval", 0,
		"partition size in days")
	initCmd.Flags().IntVar(&initCompressAfter, "compress-after", 0,
		"compress chunks older than this many days")
	initCmd.Flags().BoolVar(&initDropExisting, "drop-existing", false,
		"drop the bar table and metadata before initialization")
}

func runInit(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if initTargetState != "" {
		cfg.Store.TargetState = initTargetState
	}
	if initChunkInterval > 0 {
		cfg.Store.ChunkIntervalDays = initChunkInterval
	}
	if cmd.Flags().Changed("compress-after") {
		cfg.Store.CompressAfterDays = initCompressAfter
	}

	if err := cfg.ValidateInit(); err != nil {
		return err
	}
	target, err := store.ParseState(cfg.Store.TargetState)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, tbl, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasMeta, err := db.MetadataExists(ctx, pool)
	if err != nil {
		return fmt.Errorf("failed to check metadata: %w", err)
	}
	var existing string
	if hasMeta {
		if existing, err = db.GetMetadataValue(ctx, pool, db.KeyTable); err != nil {
			return fmt.Errorf("failed to read metadata: %w", err)
		}
	}

	// Refuse to silently switch tables under an existing installation
	if existing != "" && existing != tbl.Name() && !initDropExisting {
		return fmt.Errorf(
			"database was initialized for table '%s' but '%s' was specified; "+
				"use --drop-existing to reinitialize", existing, tbl.Name())
	}

	lc := store.NewLifecycle(pool, tbl, storePolicy())

	if initDropExisting {
		logging.Warn().Str("table", tbl.Name()).Msg("Dropping existing bar table")
		if existing != "" && existing != tbl.Name() {
			if old, err := store.NewTable(existing); err == nil {
				if err := store.NewLifecycle(pool, old, storePolicy()).Drop(ctx); err != nil {
					return err
				}
			}
		}
		if err := lc.Drop(ctx); err != nil {
			return err
		}
		if hasMeta {
			if err := db.DropMetadata(ctx, pool); err != nil {
				return fmt.Errorf("failed to drop metadata: %w", err)
			}
		}
	}

	current, err := lc.State(ctx)
	if err != nil {
		return err
	}
	logging.Info().
		Str("table", tbl.Name()).
		Str("current_state", current.String()).
		Str("target_state", target.String()).
		Int("chunk_interval_days", cfg.Store.ChunkIntervalDays).
		Int("compress_after_days", cfg.Store.CompressAfterDays).
		Msg("Initializing bar table")

	if err := lc.Migrate(ctx, target); err != nil {
		return err
	}
	if err := store.NewRunLog(pool).Init(ctx); err != nil {
		return err
	}

	err = db.SaveMetadata(ctx, pool, map[string]string{
		db.KeyVersion:        version.Version,
		db.KeyChunkInterval:  strconv.Itoa(cfg.Store.ChunkIntervalDays),
		db.KeyCompressAfter:  strconv.Itoa(cfg.Store.CompressAfterDays),
		db.KeyLastMigratedAt: nowRFC3339(),
	})
	if err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}

	logging.Info().
		Str("table", tbl.Name()).
		Str("state", target.String()).
		Msg("Bar table initialization complete")
	return nil
}
