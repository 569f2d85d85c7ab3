package provider

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/metrics"
)

// FetcherConfig bounds retries of a single page request.
type FetcherConfig struct {
	// MaxAttempts includes the first call.
	MaxAttempts int
	Backoff     time.Duration
}

// Fetcher paces and retries calls to a PriceSource. It is itself a
// PriceSource.
type Fetcher struct {
	source PriceSource
	pacer  *Pacer
	cfg    FetcherConfig
	log    zerolog.Logger
}

// NewFetcher wraps source. Every attempt, retries included, waits for
// pacer.
func NewFetcher(source PriceSource, pacer *Pacer, cfg FetcherConfig) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if pacer == nil {
		pacer = NewPacer(0)
	}
	return &Fetcher{source: source, pacer: pacer, cfg: cfg, log: logging.Component("provider")}
}

// FetchPage fetches one page, retrying rate-limit and server errors up
// to MaxAttempts.
func (f *Fetcher) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	var page Page
	op := func() error {
		err := f.pacer.Do(ctx, func() error {
			p, err := f.source.FetchPage(ctx, req)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil && ctx.Err() == nil {
			err = Classify(err)
		}
		metrics.ProviderRequests.WithLabelValues(outcome(err)).Inc()
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(f.cfg.Backoff), uint64(f.cfg.MaxAttempts-1)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		f.log.Warn().
			Err(err).
			Str("symbol", req.Symbol).
			Str("cursor", req.Cursor).
			Dur("wait", wait).
			Msg("Retrying provider request")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return Page{}, err
	}
	return page, nil
}
