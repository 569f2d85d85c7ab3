//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package provider fetches bars from an external, rate-limited price
// provider. Calls from every worker go through one Pacer, and
// rate-limit and server errors are retried with a fixed backoff.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

var (
	// ErrRateLimited is returned for HTTP 429 responses.
	ErrRateLimited = errors.New("provider rate limit exceeded")

	// ErrServerError is returned for HTTP 5xx responses and transport
	// failures.
	ErrServerError = errors.New("provider server error")

	// ErrClientError is returned for other HTTP 4xx responses. It is
	// never retried.
	ErrClientError = errors.New("provider rejected request")
)

// PageRequest asks for one page of a symbol's bars.
type PageRequest struct {
	Symbol      string
	Granularity market.Granularity

	// Cursor is empty for the first page.
	Cursor string
	Limit  int
}

// Page is one page of bars. An empty NextCursor marks the last page.
type Page struct {
	Bars       []market.Bar
	NextCursor string
}

// PriceSource returns pages of bars.
type PriceSource interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Classify wraps err with ErrRateLimited, ErrServerError or
// ErrClientError. Context errors are returned unchanged and any other
// failure is treated as a server error.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError) || errors.Is(err, ErrClientError) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		case se.StatusCode >= 500:
			return fmt.Errorf("%w: %w", ErrServerError, err)
		case se.StatusCode >= 400:
			return fmt.Errorf("%w: %w", ErrClientError, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrServerError, err)
}

// Retryable reports whether a classified error should be retried.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServerError):
		return "server_error"
	case errors.Is(err, ErrClientError):
		return "client_error"
	default:
		return "cancelled"
	}
}
