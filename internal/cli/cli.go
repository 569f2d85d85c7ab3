//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-marketgen.
package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-marketgen/internal/config"
	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/store"
	"github.com/pgEdge/pgedge-marketgen/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	connection string
	table      string
	logLevel   string
	logFormat  string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-marketgen",
		Short: "Synthetic market data generator for TimescaleDB",
		Long: `pgedge-marketgen generates realistic daily and hourly OHLCV price
series and ingests them into a PostgreSQL table that is partitioned by
trading day and compressed by symbol with TimescaleDB.

Series come either from a seedable random walk or from an external,
rate-limited price provider. Ingestion is idempotent: re-running a
horizon updates existing bars in place.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-marketgen.yaml)")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&table, "table", "",
		"bar table name, optionally schema-qualified")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (pretty, json)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(exportCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if table != "" {
		cfg.Store.Table = table
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	// Reinitialize logger with config
	logging.Init(logging.ConfigFor(cfg.LogLevel, cfg.LogFormat))

	return nil
}

// openStore connects to the database and returns the pool and the
// configured bar table.
func openStore(ctx context.Context) (*pgxpool.Pool, store.Table, error) {
	t, err := store.NewTable(cfg.Store.Table)
	if err != nil {
		return nil, store.Table{}, err
	}
	pool, err := db.ConnectWithMaxConns(ctx, cfg.Connection, int32(cfg.Store.MaxConns))
	if err != nil {
		return nil, store.Table{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, t, nil
}

func storePolicy() store.Policy {
	return store.Policy{
		ChunkIntervalDays: cfg.Store.ChunkIntervalDays,
		CompressAfterDays: cfg.Store.CompressAfterDays,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}
