package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

var (
	// ErrTransient marks connection and transaction failures that are
	// worth retrying.
	ErrTransient = errors.New("transient store error")

	// ErrValidation marks rows rejected by the store's constraints. It is
	// the same sentinel as market.ErrValidation.
	ErrValidation = market.ErrValidation

	// ErrBackwardMigration is returned when a migration target is behind
	// the current state.
	ErrBackwardMigration = errors.New("lifecycle transitions are forward-only")

	// ErrTimescaleUnavailable is returned when partitioning is requested
	// but the timescaledb extension cannot be created.
	ErrTimescaleUnavailable = errors.New("timescaledb extension is not available")
)

// ClassifyError wraps err with ErrTransient or ErrValidation according
// to its SQLSTATE class or network nature. Other errors, including
// context cancellation, are returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrValidation) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch sqlStateClass(pgErr.Code) {
		case "08", "40", "53", "57":
			return fmt.Errorf("%w: %w", ErrTransient, err)
		case "22", "23":
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	return err
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(ClassifyError(err), ErrTransient)
}

func sqlStateClass(code string) string {
	if len(code) < 2 {
		return ""
	}
	return code[:2]
}
