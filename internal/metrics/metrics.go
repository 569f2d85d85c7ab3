// Package metrics exposes Prometheus counters for ingestion runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
)

const namespace = "marketgen"

var (
	BarsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "bars_written_total", Help: "Bars written to the store"},
		[]string{"op"},
	)
	InvalidBars = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "invalid_bars_total", Help: "Bars dropped by validation before writing"},
	)
	BatchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "batch_failures_total", Help: "Upsert batches that failed"},
		[]string{"kind"},
	)
	BatchRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "batch_retries_total", Help: "Upsert batches retried after a transient error"},
	)
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Time to write one upsert batch",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)
	Units = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "units_total", Help: "Ingestion units by outcome"},
		[]string{"source", "status"},
	)
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "provider_requests_total", Help: "Price provider requests by outcome"},
		[]string{"outcome"},
	)
)

// Unit statuses.
const (
	StatusOK        = "ok"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

func init() {
	prometheus.MustRegister(BarsWritten, InvalidBars, BatchFailures, BatchRetries, BatchDuration, Units, ProviderRequests)
}

// Serve exposes /metrics on addr in the background.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Warn().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	logging.Info().Str("addr", addr).Msg("Serving metrics")
	return srv
}

// Shutdown stops a server started by Serve.
func Shutdown(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
