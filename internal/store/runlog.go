package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
)

const createRunsTableSQL = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    run_id       UUID        PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    source       TEXT        NOT NULL,
    horizon      TEXT        NOT NULL,
    intraday     BOOLEAN     NOT NULL DEFAULT FALSE,
    symbols      INTEGER     NOT NULL,
    processed    INTEGER     NOT NULL,
    inserted     BIGINT      NOT NULL,
    updated      BIGINT      NOT NULL,
    errors       INTEGER     NOT NULL,
    cancelled    BOOLEAN     NOT NULL DEFAULT FALSE,
    failures     JSONB       NOT NULL DEFAULT '{}'
)`

// RunRecord is one ingestion run as persisted in ingest_runs.
type RunRecord struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Source     string
	Horizon    string
	Intraday   bool
	Symbols    int
	Processed  int
	Inserted   int64
	Updated    int64
	Errors     int
	Cancelled  bool

	// Failures maps a symbol to its failure message.
	Failures map[string]string
}

// RunLog records ingestion runs.
type RunLog struct {
	conn db.DB
}

// NewRunLog creates a run log.
func NewRunLog(conn db.DB) *RunLog {
	return &RunLog{conn: conn}
}

// Init creates the runs table if needed.
func (l *RunLog) Init(ctx context.Context) error {
	if _, err := l.conn.Exec(ctx, createRunsTableSQL); err != nil {
		return fmt.Errorf("failed to create ingest_runs table: %w", err)
	}
	return nil
}

// Record stores a finished run.
func (l *RunLog) Record(ctx context.Context, r RunRecord) error {
	failures := r.Failures
	if failures == nil {
		failures = map[string]string{}
	}
	_, err := l.conn.Exec(ctx, `
        INSERT INTO ingest_runs (
            run_id, started_at, finished_at, source, horizon, intraday,
            symbols, processed, inserted, updated, errors, cancelled, failures
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, r.RunID, r.StartedAt, r.FinishedAt, r.Source, r.Horizon, r.Intraday,
		r.Symbols, r.Processed, r.Inserted, r.Updated, r.Errors, r.Cancelled, failures)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. A missing runs table
// yields no runs.
func (l *RunLog) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	var exists bool
	if err := l.conn.QueryRow(ctx, `SELECT to_regclass('ingest_runs') IS NOT NULL`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check ingest_runs table: %w", err)
	}
	if !exists {
		return nil, nil
	}

	rows, err := l.conn.Query(ctx, `
        SELECT run_id, started_at, finished_at, source, horizon, intraday,
               symbols, processed, inserted, updated, errors, cancelled, failures
        FROM ingest_runs
        ORDER BY started_at DESC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.Horizon, &r.Intraday,
			&r.Symbols, &r.Processed, &r.Inserted, &r.Updated, &r.Errors, &r.Cancelled, &r.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
