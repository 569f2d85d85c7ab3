//-------------------------------------------------------------------------
//
// pgEdge Market Data Generator
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"fmt"
	"math"
	"time"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// Series is one symbol's generated bars, oldest first. Daily bars come
// before the hourly bars of the same trading day.
type Series struct {
	Symbol string
	Bars   []market.Bar

	// EndPrice is the unrounded last close, for chaining a later series.
	EndPrice float64
}

// Generator builds full series from the trading calendar and the walk.
// A Generator is owned by a single unit of work.
type Generator struct {
	calendar  market.Calendar
	walk      *Walk
	reference time.Time
}

// NewGenerator creates a generator drawing from f. Series end at the
// reference date; a zero reference means today (UTC).
func NewGenerator(f *Faker, reference time.Time) *Generator {
	return &Generator{
		walk:      NewWalk(f),
		reference: reference,
	}
}

// Reference returns the date series end at.
func (g *Generator) Reference() time.Time {
	if g.reference.IsZero() {
		return market.Day(time.Now())
	}
	return market.Day(g.reference)
}

// Generate produces the series for req starting from seedPrice. A
// horizon resolving to zero days yields an empty series.
func (g *Generator) Generate(req market.SeriesRequest, seedPrice float64) (Series, error) {
	if err := req.Validate(); err != nil {
		return Series{}, err
	}
	if seedPrice <= 0 || math.IsNaN(seedPrice) || math.IsInf(seedPrice, 0) {
		return Series{}, fmt.Errorf("%w: %s seed price %v", market.ErrInvalidRequest, req.Symbol, seedPrice)
	}

	class := req.Class()
	ref := g.Reference()
	n := req.Horizon.Resolve(ref, class)

	series := Series{Symbol: req.Symbol, EndPrice: seedPrice}
	if n == 0 {
		return series, nil
	}

	var days []time.Time
	if req.Horizon.Calendar {
		days = g.calendar.CalendarDaysBack(ref, n)
	} else {
		days = g.calendar.TradingDaysBack(ref, n, class)
	}

	intraday := g.intradayDays(days, class, req.IntradayWindow())
	profile := ProfileFor(req.Symbol, class)

	bars := make([]market.Bar, 0, len(days)+len(intraday)*market.HoursPerDay)
	price := seedPrice
	for _, day := range days {
		var c Candle
		if g.calendar.IsTradingDay(day, class) {
			c = g.walk.NextBar(price, profile, SessionDaily)
		} else {
			c = g.walk.FlatBar(price)
		}
		bars = append(bars, c.Bar(req.Symbol, day, nil))
		if intraday[day] {
			bars = append(bars, g.hourly(req.Symbol, day, c, profile)...)
		}
		price = c.Close
	}

	series.Bars = bars
	series.EndPrice = price
	return series, nil
}

// intradayDays picks the most recent trading days of the window that
// get hourly bars.
func (g *Generator) intradayDays(days []time.Time, class market.AssetClass, n int) map[time.Time]bool {
	picked := make(map[time.Time]bool, n)
	for i := len(days) - 1; i >= 0 && len(picked) < n; i-- {
		if g.calendar.IsTradingDay(days[i], class) {
			picked[days[i]] = true
		}
	}
	return picked
}

// hourly walks 24 hourly bars from the day's open to its close, keeping
// every bar inside the day's range.
func (g *Generator) hourly(symbol string, day time.Time, daily Candle, p Profile) []market.Bar {
	bars := make([]market.Bar, 0, market.HoursPerDay)
	price := daily.Open
	for h := range market.HoursPerDay {
		c := g.walk.NextBar(price, p, SessionAt(p.Class, h))
		if h == market.HoursPerDay-1 {
			c.Close = daily.Close
		}
		c.Close = clamp(c.Close, daily.Low, daily.High)
		c.High = math.Min(math.Max(c.High, math.Max(c.Open, c.Close)), daily.High)
		c.Low = math.Max(math.Min(c.Low, math.Min(c.Open, c.Close)), daily.Low)

		ts := day.Add(time.Duration(h) * time.Hour)
		bars = append(bars, c.Bar(symbol, day, &ts))
		price = c.Close
	}
	return bars
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
