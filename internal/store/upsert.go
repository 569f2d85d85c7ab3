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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/internal/metrics"
)

// DefaultBatchSize is the number of rows per upsert statement.
const DefaultBatchSize = 100

// BatchResult counts the effect of one written batch.
type BatchResult struct {
	Inserted int
	Updated  int
}

// BatchWriter writes one batch atomically: either every row is merged or
// none is.
type BatchWriter interface {
	WriteBatch(ctx context.Context, bars []market.Bar) (BatchResult, error)
}

// UpsertConfig configures batching and retry.
type UpsertConfig struct {
	// BatchSize is the number of rows per batch.
	BatchSize int

	// RetryBackoff is the delay before the single retry of a batch that
	// failed with a transient error.
	RetryBackoff time.Duration

	// MaxRetries is the number of retries per batch.
	MaxRetries int
}

// DefaultUpsertConfig returns default upsert configuration.
func DefaultUpsertConfig() UpsertConfig {
	return UpsertConfig{
		BatchSize:    DefaultBatchSize,
		RetryBackoff: 500 * time.Millisecond,
		MaxRetries:   1,
	}
}

// BatchError records one failed batch.
type BatchError struct {
	Batch int
	Rows  int
	First market.Key
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d (%d rows from %s): %v", e.Batch, e.Rows, e.First, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// UpsertResult aggregates one symbol's upsert.
type UpsertResult struct {
	Inserted      int
	Updated       int
	Invalid       int
	FailedBatches int
	Errors        []error
}

// ErrorCount is the number of failures counted against the run: failed
// batches plus dropped rows.
func (r UpsertResult) ErrorCount() int {
	return r.FailedBatches + r.Invalid
}

// Err joins the recorded errors.
func (r UpsertResult) Err() error {
	return errors.Join(r.Errors...)
}

// Upserter merges bar sequences into the store in batches.
type Upserter struct {
	writer BatchWriter
	cfg    UpsertConfig
	log    zerolog.Logger
}

// NewUpserter creates an upserter writing through w.
func NewUpserter(w BatchWriter, cfg UpsertConfig) *Upserter {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Upserter{writer: w, cfg: cfg, log: logging.Component("upsert")}
}

// Upsert validates, de-duplicates and writes bars for symbol, oldest
// first. Invalid rows are dropped and counted; a failed batch is recorded
// and later batches still run. The returned error is non-nil only when
// ctx was cancelled before every batch was attempted.
func (u *Upserter) Upsert(ctx context.Context, symbol string, bars []market.Bar) (UpsertResult, error) {
	var res UpsertResult

	valid := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		err := b.Validate()
		if err == nil && b.Symbol != symbol {
			err = fmt.Errorf("%w: bar for %s in %s series", ErrValidation, b.Symbol, symbol)
		}
		if err != nil {
			res.Invalid++
			res.Errors = append(res.Errors, err)
			metrics.InvalidBars.Inc()
			u.log.Warn().Err(err).Str("symbol", symbol).Msg("Dropping invalid bar")
			continue
		}
		valid = append(valid, b)
	}

	rows := dedupe(valid)

	for i, start := 0, 0; start < len(rows); i, start = i+1, start+u.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch := rows[start:min(start+u.cfg.BatchSize, len(rows))]

		br, err := u.writeWithRetry(ctx, batch)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			res.FailedBatches++
			res.Errors = append(res.Errors, &BatchError{Batch: i, Rows: len(batch), First: batch[0].Key(), Err: err})
			metrics.BatchFailures.WithLabelValues(failureKind(err)).Inc()
			u.log.Error().
				Err(err).
				Str("symbol", symbol).
				Int("batch", i).
				Int("rows", len(batch)).
				Msg("Upsert batch failed")
			continue
		}

		res.Inserted += br.Inserted
		res.Updated += br.Updated
		metrics.BarsWritten.WithLabelValues("inserted").Add(float64(br.Inserted))
		metrics.BarsWritten.WithLabelValues("updated").Add(float64(br.Updated))
	}

	u.log.Debug().
		Str("symbol", symbol).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("invalid", res.Invalid).
		Int("failed_batches", res.FailedBatches).
		Msg("Upserted bars")

	return res, nil
}

func (u *Upserter) writeWithRetry(ctx context.Context, batch []market.Bar) (BatchResult, error) {
	var br BatchResult
	op := func() error {
		start := time.Now()
		r, err := u.writer.WriteBatch(ctx, batch)
		metrics.BatchDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			err = ClassifyError(err)
			if !IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		br = r
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(u.cfg.RetryBackoff), uint64(u.cfg.MaxRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		metrics.BatchRetries.Inc()
		u.log.Warn().Err(err).Dur("wait", wait).Int("rows", len(batch)).Msg("Retrying upsert batch")
	}
	err := backoff.RetryNotify(op, policy, notify)
	return br, err
}

// dedupe keeps one row per key, the last one seen, at the position of
// the key's first occurrence.
func dedupe(bars []market.Bar) []market.Bar {
	index := make(map[market.Key]int, len(bars))
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		k := b.Key()
		if i, ok := index[k]; ok {
			out[i] = b
			continue
		}
		index[k] = len(out)
		out = append(out, b)
	}
	return out
}

func failureKind(err error) string {
	switch {
	case IsTransient(err):
		return "transient"
	case errors.Is(ClassifyError(err), ErrValidation):
		return "validation"
	default:
		return "other"
	}
}
