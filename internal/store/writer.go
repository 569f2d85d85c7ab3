package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/pgEdge/pgedge-marketgen/internal/db"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// PGWriter writes batches with one parameterized multi-row upsert per
// transaction.
type PGWriter struct {
	conn  db.DB
	table Table
}

// NewPGWriter creates a writer for table.
func NewPGWriter(conn db.DB, table Table) *PGWriter {
	return &PGWriter{conn: conn, table: table}
}

// WriteBatch merges bars in a single transaction. Keys must be unique
// within the batch.
func (w *PGWriter) WriteBatch(ctx context.Context, bars []market.Bar) (BatchResult, error) {
	var res BatchResult
	if len(bars) == 0 {
		return res, nil
	}

	args := make([]any, 0, len(bars)*len(barColumns))
	for _, b := range bars {
		args = append(args,
			b.Symbol,
			b.TradingDay,
			string(b.Granularity()),
			b.BarTime(),
			b.Open,
			b.High,
			b.Low,
			b.Close,
			b.AdjustedClose,
			b.Volume,
		)
	}

	tx, err := w.conn.Begin(ctx)
	if err != nil {
		return res, ClassifyError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, upsertSQL(w.table, len(bars)), args...)
	if err != nil {
		return res, ClassifyError(fmt.Errorf("failed to upsert bars: %w", err))
	}
	for rows.Next() {
		var inserted bool
		if err := rows.Scan(&inserted); err != nil {
			rows.Close()
			return BatchResult{}, ClassifyError(fmt.Errorf("failed to read upsert result: %w", err))
		}
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return BatchResult{}, ClassifyError(fmt.Errorf("failed to upsert bars: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return BatchResult{}, ClassifyError(fmt.Errorf("failed to commit batch: %w", err))
	}
	return res, nil
}

// MemoryWriter keeps bars in memory with the same key and merge
// semantics as the table. It backs dry runs and tests.
type MemoryWriter struct {
	mu   sync.Mutex
	rows map[market.Key]market.Bar

	// failures are returned by the next WriteBatch calls, in order.
	failures []error
	calls    int
}

// NewMemoryWriter creates an empty in-memory store.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{rows: make(map[market.Key]market.Bar)}
}

// FailNext makes the next len(errs) WriteBatch calls fail with errs.
func (m *MemoryWriter) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// WriteBatch merges bars, rejecting the whole batch if any row violates
// the table's constraints.
func (m *MemoryWriter) WriteBatch(ctx context.Context, bars []market.Bar) (BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return BatchResult{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return BatchResult{}, err
	}
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			return BatchResult{}, err
		}
	}

	var res BatchResult
	for _, b := range bars {
		k := b.Key()
		if _, ok := m.rows[k]; ok {
			res.Updated++
		} else {
			res.Inserted++
		}
		m.rows[k] = b
	}
	return res, nil
}

// Len returns the number of stored rows.
func (m *MemoryWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Calls returns the number of WriteBatch calls.
func (m *MemoryWriter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Get returns the stored row for k.
func (m *MemoryWriter) Get(k market.Key) (market.Bar, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[k]
	return b, ok
}

// Bars returns the stored rows for symbol in key order.
func (m *MemoryWriter) Bars(symbol string) []market.Bar {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []market.Bar
	for k, b := range m.rows {
		if k.Symbol == symbol {
			out = append(out, b)
		}
	}
	sortBars(out)
	return out
}
