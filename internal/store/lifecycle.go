//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/logging"
)

// State is the lifecycle state of the bar table. States only move
// forward.
type State int

const (
	Uninitialized State = iota
	FlatTable
	PartitionedUncompressed
	PartitionedWithCompressionPolicy
)

var stateNames = []string{"uninitialized", "flat", "partitioned", "compressed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// ParseState parses a state name as used in configuration.
func ParseState(s string) (State, error) {
	i := slices.Index(stateNames, strings.ToLower(strings.TrimSpace(s)))
	if i < 0 {
		return 0, fmt.Errorf("unknown lifecycle state %q (valid: %s)", s, strings.Join(stateNames, ", "))
	}
	return State(i), nil
}

// Policy is the partition and compression policy of the table.
type Policy struct {
	ChunkIntervalDays int
	CompressAfterDays int
}

// DefaultPolicy returns 30-day chunks compressed after 7 days.
func DefaultPolicy() Policy {
	return Policy{ChunkIntervalDays: 30, CompressAfterDays: 7}
}

// Chunk is one time partition of the table.
type Chunk struct {
	Schema     string
	Name       string
	RangeStart time.Time
	RangeEnd   time.Time
	Compressed bool
}

// Stats summarizes the table for the status command.
type Stats struct {
	State                  State
	Rows                   int64
	Symbols                int64
	TotalBytes             int64
	Chunks                 int
	CompressedChunks       int
	BeforeCompressionBytes int64
	AfterCompressionBytes  int64
}

// Lifecycle inspects and migrates the bar table.
type Lifecycle struct {
	conn   db.DB
	table  Table
	policy Policy
}

// NewLifecycle creates a lifecycle manager for table.
func NewLifecycle(conn db.DB, table Table, policy Policy) *Lifecycle {
	return &Lifecycle{conn: conn, table: table, policy: policy}
}

// State inspects the catalogs to determine the current state.
func (l *Lifecycle) State(ctx context.Context) (State, error) {
	schema, name, ok, err := l.resolve(ctx)
	if err != nil {
		return Uninitialized, err
	}
	if !ok {
		return Uninitialized, nil
	}

	installed, err := l.timescaleInstalled(ctx)
	if err != nil {
		return Uninitialized, err
	}
	if !installed {
		return FlatTable, nil
	}

	var compressionEnabled bool
	err = l.conn.QueryRow(ctx, `
        SELECT compression_enabled
        FROM timescaledb_information.hypertables
        WHERE hypertable_schema = $1 AND hypertable_name = $2
    `, schema, name).Scan(&compressionEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return FlatTable, nil
	}
	if err != nil {
		return Uninitialized, fmt.Errorf("failed to inspect hypertable: %w", err)
	}
	if !compressionEnabled {
		return PartitionedUncompressed, nil
	}

	hasPolicy, err := l.compressionPolicyExists(ctx, schema, name)
	if err != nil {
		return Uninitialized, err
	}
	if !hasPolicy {
		return PartitionedUncompressed, nil
	}
	return PartitionedWithCompressionPolicy, nil
}

// Migrate moves the table forward to target one step at a time,
// re-checking the state before every step. It is safe to re-run.
func (l *Lifecycle) Migrate(ctx context.Context, target State) error {
	for step := 0; ; step++ {
		current, err := l.State(ctx)
		if err != nil {
			return err
		}
		if current == target {
			return l.recordState(ctx, current)
		}
		if current > target {
			return fmt.Errorf("%w: table %s is %s, target is %s", ErrBackwardMigration, l.table, current, target)
		}
		if step > int(PartitionedWithCompressionPolicy) {
			return fmt.Errorf("migration of %s stuck in state %s", l.table, current)
		}

		next := current + 1
		logging.Info().
			Str("table", l.table.Name()).
			Str("from", current.String()).
			Str("to", next.String()).
			Msg("Migrating bar table")

		switch current {
		case Uninitialized:
			err = l.CreateTable(ctx)
		case FlatTable:
			err = l.ConvertToHypertable(ctx)
		case PartitionedUncompressed:
			err = l.EnableCompression(ctx)
		default:
			err = fmt.Errorf("no migration from state %s", current)
		}
		if err != nil {
			return fmt.Errorf("migration %s -> %s failed: %w", current, next, err)
		}
	}
}

// CreateTable creates the flat bar table and its symbol index.
func (l *Lifecycle) CreateTable(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, createTableSQL(l.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", l.table, err)
	}
	if _, err := l.conn.Exec(ctx, createSymbolIndexSQL(l.table)); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", l.table, err)
	}
	return nil
}

// ConvertToHypertable partitions the table by trading_day, preserving
// existing rows. A primary key without the time dimension is rebuilt
// first, since partitioning requires it.
func (l *Lifecycle) ConvertToHypertable(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS timescaledb`); err != nil {
		return fmt.Errorf("%w: %w", ErrTimescaleUnavailable, err)
	}

	if err := l.ensureTimeInclusiveKey(ctx); err != nil {
		return err
	}

	_, err := l.conn.Exec(ctx, `
        SELECT create_hypertable(
            $1::regclass, 'trading_day',
            chunk_time_interval => make_interval(days => $2),
            if_not_exists => TRUE,
            migrate_data => TRUE
        )
    `, l.table.Name(), l.policy.ChunkIntervalDays)
	if err != nil {
		return fmt.Errorf("failed to create hypertable %s: %w", l.table, err)
	}
	return nil
}

// EnableCompression segments compressed chunks by symbol, orders them by
// trading day and schedules the compression policy.
func (l *Lifecycle) EnableCompression(ctx context.Context) error {
	schema, name, _, err := l.resolve(ctx)
	if err != nil {
		return err
	}

	var enabled bool
	err = l.conn.QueryRow(ctx, `
        SELECT compression_enabled
        FROM timescaledb_information.hypertables
        WHERE hypertable_schema = $1 AND hypertable_name = $2
    `, schema, name).Scan(&enabled)
	if err != nil {
		return fmt.Errorf("failed to inspect hypertable: %w", err)
	}

	if !enabled {
		if _, err = l.conn.Exec(ctx, compressionSettingsSQL(l.table)); err != nil {
			return fmt.Errorf("failed to enable compression on %s: %w", l.table, err)
		}
	}

	_, err = l.conn.Exec(ctx, `
        SELECT add_compression_policy(
            $1::regclass,
            compress_after => make_interval(days => $2),
            if_not_exists => TRUE
        )
    `, l.table.Name(), l.policy.CompressAfterDays)
	if err != nil {
		return fmt.Errorf("failed to add compression policy on %s: %w", l.table, err)
	}
	return nil
}

// Chunks lists the table's partitions, oldest first. A table that is not
// partitioned has none.
func (l *Lifecycle) Chunks(ctx context.Context) ([]Chunk, error) {
	state, err := l.State(ctx)
	if err != nil || state < PartitionedUncompressed {
		return nil, err
	}
	schema, name, _, err := l.resolve(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := l.conn.Query(ctx, `
        SELECT chunk_schema, chunk_name, range_start, range_end, is_compressed
        FROM timescaledb_information.chunks
        WHERE hypertable_schema = $1 AND hypertable_name = $2
        ORDER BY range_start
    `, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.Schema, &c.Name, &c.RangeStart, &c.RangeEnd, &c.Compressed); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CompressNow compresses every uncompressed chunk older than olderThanDays
// and returns how many chunks it compressed.
func (l *Lifecycle) CompressNow(ctx context.Context, olderThanDays int) (int, error) {
	state, err := l.State(ctx)
	if err != nil {
		return 0, err
	}
	if state < PartitionedWithCompressionPolicy {
		return 0, fmt.Errorf("table %s is %s; compression requires state %s",
			l.table, state, PartitionedWithCompressionPolicy)
	}

	rows, err := l.conn.Query(ctx, `
        SELECT compress_chunk(c, if_not_compressed => TRUE)
        FROM show_chunks($1::regclass, older_than => make_interval(days => $2)) c
    `, l.table.Name(), olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to compress chunks: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("failed to compress chunks: %w", err)
	}

	logging.Info().
		Str("table", l.table.Name()).
		Int("chunks", n).
		Int("older_than_days", olderThanDays).
		Msg("Compressed chunks")
	return n, nil
}

// Stats reports row counts, size and compression figures.
func (l *Lifecycle) Stats(ctx context.Context) (Stats, error) {
	st := Stats{}
	state, err := l.State(ctx)
	if err != nil {
		return st, err
	}
	st.State = state
	if state == Uninitialized {
		return st, nil
	}

	err = l.conn.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*), count(DISTINCT symbol) FROM %s`, l.table.Ident(),
	)).Scan(&st.Rows, &st.Symbols)
	if err != nil {
		return st, fmt.Errorf("failed to count rows: %w", err)
	}

	if state == FlatTable {
		err = l.conn.QueryRow(ctx, `SELECT pg_total_relation_size($1::regclass)`, l.table.Name()).Scan(&st.TotalBytes)
		if err != nil {
			return st, fmt.Errorf("failed to read table size: %w", err)
		}
		return st, nil
	}

	err = l.conn.QueryRow(ctx, `SELECT COALESCE(hypertable_size($1::regclass), 0)`, l.table.Name()).Scan(&st.TotalBytes)
	if err != nil {
		return st, fmt.Errorf("failed to read hypertable size: %w", err)
	}

	chunks, err := l.Chunks(ctx)
	if err != nil {
		return st, err
	}
	st.Chunks = len(chunks)
	for _, c := range chunks {
		if c.Compressed {
			st.CompressedChunks++
		}
	}

	if state == PartitionedWithCompressionPolicy {
		err = l.conn.QueryRow(ctx, `
            SELECT COALESCE(sum(before_compression_total_bytes), 0)::bigint,
                   COALESCE(sum(after_compression_total_bytes), 0)::bigint
            FROM hypertable_compression_stats($1::regclass)
        `, l.table.Name()).Scan(&st.BeforeCompressionBytes, &st.AfterCompressionBytes)
		if err != nil {
			return st, fmt.Errorf("failed to read compression stats: %w", err)
		}
	}
	return st, nil
}

// Drop removes the bar table.
func (l *Lifecycle) Drop(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s CASCADE`, l.table.Ident())); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", l.table, err)
	}
	return nil
}

// resolve returns the schema and relation name of the table, and false
// when it does not exist.
func (l *Lifecycle) resolve(ctx context.Context) (schema, name string, ok bool, err error) {
	err = l.conn.QueryRow(ctx, `
        SELECT n.nspname, c.relname
        FROM pg_class c
        JOIN pg_namespace n ON n.oid = c.relnamespace
        WHERE c.oid = to_regclass($1)
    `, l.table.Name()).Scan(&schema, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to resolve table %s: %w", l.table, err)
	}
	return schema, name, true, nil
}

func (l *Lifecycle) timescaleInstalled(ctx context.Context) (bool, error) {
	var installed bool
	err := l.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')`,
	).Scan(&installed)
	if err != nil {
		return false, fmt.Errorf("failed to check timescaledb extension: %w", err)
	}
	return installed, nil
}

func (l *Lifecycle) compressionPolicyExists(ctx context.Context, schema, name string) (bool, error) {
	var exists bool
	err := l.conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM timescaledb_information.jobs
            WHERE proc_name = 'policy_compression'
              AND hypertable_schema = $1 AND hypertable_name = $2
        )
    `, schema, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to inspect compression policy: %w", err)
	}
	return exists, nil
}

// ensureTimeInclusiveKey rebuilds a primary key that lacks trading_day
// (for example a surrogate id) as the bar uniqueness key, in one
// transaction. Rows that collide on the new key are merged first, keeping
// the most recently written one. Unique constraints on the legacy
// "timestamp" column are dropped; the new key supersedes them.
func (l *Lifecycle) ensureTimeInclusiveKey(ctx context.Context) error {
	var (
		conName string
		columns []string
	)
	err := l.conn.QueryRow(ctx, `
        SELECT con.conname, array_agg(a.attname::text ORDER BY a.attnum)
        FROM pg_constraint con
        JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = ANY (con.conkey)
        WHERE con.conrelid = to_regclass($1) AND con.contype = 'p'
        GROUP BY con.conname
    `, l.table.Name()).Scan(&conName, &columns)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to inspect primary key: %w", err)
	}
	if slices.Contains(columns, "trading_day") && slices.Contains(columns, "bar_time") {
		return nil
	}

	logging.Info().
		Str("table", l.table.Name()).
		Str("constraint", conName).
		Strs("columns", columns).
		Msg("Rebuilding primary key to include the time dimension")

	var hasTimestamp bool
	err = l.conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM pg_attribute
            WHERE attrelid = to_regclass($1) AND attname = 'timestamp' AND NOT attisdropped
        )
    `, l.table.Name()).Scan(&hasTimestamp)
	if err != nil {
		return fmt.Errorf("failed to inspect columns: %w", err)
	}

	var superseded []string
	if hasTimestamp {
		rows, err := l.conn.Query(ctx, `
            SELECT DISTINCT con.conname
            FROM pg_constraint con
            JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = ANY (con.conkey)
            WHERE con.conrelid = to_regclass($1) AND con.contype = 'u' AND a.attname = 'timestamp'
        `, l.table.Name())
		if err != nil {
			return fmt.Errorf("failed to inspect unique constraints: %w", err)
		}
		superseded, err = pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to inspect unique constraints: %w", err)
		}
	}

	tx, err := l.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range legacyColumnsSQL(l.table, hasTimestamp) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to upgrade legacy columns: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, dedupeKeySQL(l.table))
	if err != nil {
		return fmt.Errorf("failed to merge duplicate rows: %w", err)
	}
	if merged := tag.RowsAffected(); merged > 0 {
		logging.Warn().
			Str("table", l.table.Name()).
			Int64("rows", merged).
			Msg("Merged rows that share a bar key, keeping the latest")
	}

	var stmts []string
	for _, name := range append(superseded, conName) {
		if name == "" {
			continue
		}
		stmts = append(stmts, fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT %s`,
			l.table.Ident(), pgx.Identifier{name}.Sanitize()))
	}
	stmts = append(stmts, fmt.Sprintf(`ALTER TABLE %s ADD PRIMARY KEY (%s)`, l.table.Ident(), keyColumns))

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to rebuild primary key: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (l *Lifecycle) recordState(ctx context.Context, s State) error {
	err := db.SaveMetadata(ctx, l.conn, map[string]string{
		db.KeyTable:         l.table.Name(),
		db.KeyState:         s.String(),
		db.KeyChunkInterval: strconv.Itoa(l.policy.ChunkIntervalDays),
		db.KeyCompressAfter: strconv.Itoa(l.policy.CompressAfterDays),
	})
	if err != nil {
		return err
	}
	return db.SaveMetadataOnce(ctx, l.conn, db.KeyInitializedAt, time.Now().UTC().Format(time.RFC3339))
}
