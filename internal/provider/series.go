package provider

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/pgEdge/pgedge-marketgen/internal/logging"
	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// maxPages stops a provider that never ends its cursor chain.
const maxPages = 10_000

// Classifier reports the declared asset class of a symbol.
type Classifier interface {
	Class(symbol string) market.AssetClass
}

// Source builds series requests out of provider pages.
type Source struct {
	pages     PriceSource
	pageSize  int
	reference time.Time
	classes   Classifier
	calendar  market.Calendar
	log       zerolog.Logger
}

// NewSource creates a series source over pages, usually a Fetcher.
// Horizons are resolved against reference. Requests without an asset
// class take it from classes; a nil classes falls back to the ticker
// prefix.
func NewSource(pages PriceSource, pageSize int, reference time.Time, classes Classifier) *Source {
	return &Source{
		pages:     pages,
		pageSize:  pageSize,
		reference: market.Day(reference),
		classes:   classes,
		log:       logging.Component("provider"),
	}
}

// Name identifies the source in logs and run records.
func (s *Source) Name() string {
	return "provider"
}

// Series fetches every page for the symbol and keeps the bars inside the
// requested horizon, oldest first. Hourly bars are fetched only when
// req.IncludeIntraday is set and cover the most recent intraday days.
func (s *Source) Series(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.AssetClass == "" && s.classes != nil {
		req.AssetClass = s.classes.Class(req.Symbol)
	}
	class := req.Class()
	days := s.window(req.Horizon, class)
	if len(days) == 0 {
		return nil, nil
	}

	daily, err := s.fetchAll(ctx, req.Symbol, market.Daily)
	if err != nil {
		return nil, err
	}
	bars := trim(daily, days[0], days[len(days)-1])

	if req.IncludeIntraday {
		n := min(req.IntradayWindow(), len(days))
		hourly, err := s.fetchAll(ctx, req.Symbol, market.Hourly)
		if err != nil {
			return nil, err
		}
		bars = append(bars, trim(hourly, days[len(days)-n], days[len(days)-1])...)
	}

	slices.SortStableFunc(bars, func(a, b market.Bar) int {
		if c := a.TradingDay.Compare(b.TradingDay); c != 0 {
			return c
		}
		if a.Granularity() != b.Granularity() {
			if a.Granularity() == market.Daily {
				return -1
			}
			return 1
		}
		return a.BarTime().Compare(b.BarTime())
	})
	return bars, nil
}

// window returns the days the horizon covers, oldest first.
func (s *Source) window(h market.Horizon, class market.AssetClass) []time.Time {
	n := h.Resolve(s.reference, class)
	if h.Calendar {
		return s.calendar.CalendarDaysBack(s.reference, n)
	}
	return s.calendar.TradingDaysBack(s.reference, n, class)
}

func (s *Source) fetchAll(ctx context.Context, symbol string, g market.Granularity) ([]market.Bar, error) {
	var (
		all    []market.Bar
		cursor string
	)
	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("%w: %s returned more than %d pages", ErrServerError, symbol, maxPages)
		}
		p, err := s.pages.FetchPage(ctx, PageRequest{Symbol: symbol, Granularity: g, Cursor: cursor, Limit: s.pageSize})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s %s bars: %w", symbol, g, err)
		}
		all = append(all, p.Bars...)
		if p.NextCursor == "" || p.NextCursor == cursor {
			break
		}
		cursor = p.NextCursor
	}

	s.log.Debug().
		Str("symbol", symbol).
		Str("granularity", string(g)).
		Int("bars", len(all)).
		Msg("Fetched provider bars")
	return all, nil
}

func trim(bars []market.Bar, from, to time.Time) []market.Bar {
	out := make([]market.Bar, 0, len(bars))
	for _, b := range bars {
		if b.TradingDay.Before(from) || b.TradingDay.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out
}
