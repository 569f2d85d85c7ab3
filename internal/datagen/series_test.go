package datagen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

var (
	friday = time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	monday = time.Date(2025, time.January, 13, 0, 0, 0, 0, time.UTC)
)

func generate(t *testing.T, ref time.Time, req market.SeriesRequest) Series {
	t.Helper()
	g := NewGenerator(NewFakerWithSeed(7), ref)
	s, err := g.Generate(req, 100)
	require.NoError(t, err)
	return s
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

func TestGenerateEquityTradingDays(t *testing.T) {
	s := generate(t, friday, market.SeriesRequest{
		Symbol:  "AAPL",
		Horizon: market.NewTradingDaysHorizon(10),
	})

	require.Len(t, s.Bars, 10)
	for _, b := range s.Bars {
		assert.False(t, isWeekend(b.TradingDay), "weekend bar on %s", b.TradingDay)
		assert.Nil(t, b.Timestamp)
	}
	span := int(s.Bars[9].TradingDay.Sub(s.Bars[0].TradingDay).Hours()/24) + 1
	assert.Contains(t, []int{10, 12}, span)
	assert.Equal(t, friday, s.Bars[9].TradingDay)
}

func TestGenerateCryptoIsContiguous(t *testing.T) {
	s := generate(t, friday, market.SeriesRequest{
		Symbol:  "X:BTCUSD",
		Horizon: market.NewTradingDaysHorizon(10),
	})

	require.Len(t, s.Bars, 10)
	for i := 1; i < len(s.Bars); i++ {
		assert.Equal(t, s.Bars[i-1].TradingDay.AddDate(0, 0, 1), s.Bars[i].TradingDay)
	}
}

func TestGenerateCalendarWindowFlatFillsWeekend(t *testing.T) {
	h, err := market.ParseHorizon("7D", monday)
	require.NoError(t, err)

	s := generate(t, monday, market.SeriesRequest{Symbol: "MSFT", Horizon: h})
	require.Len(t, s.Bars, 7)

	var fridayBar market.Bar
	flat := 0
	for _, b := range s.Bars {
		if b.TradingDay.Weekday() == time.Friday {
			fridayBar = b
		}
		if !isWeekend(b.TradingDay) {
			continue
		}
		flat++
		assert.Zero(t, b.Volume)
		for _, p := range []string{b.Open.String(), b.High.String(), b.Low.String(), b.Close.String()} {
			assert.Equal(t, fridayBar.Close.String(), p, "weekend bar %s", b.TradingDay)
		}
	}
	assert.Equal(t, 2, flat)
}

func TestGenerateCalendarWindowCryptoMoves(t *testing.T) {
	s := generate(t, monday, market.SeriesRequest{
		Symbol:  "X:ETHUSD",
		Horizon: market.NewCalendarDaysHorizon(7),
	})
	require.Len(t, s.Bars, 7)
	for _, b := range s.Bars {
		assert.Positive(t, b.Volume)
	}
}

func TestGenerateIntraday(t *testing.T) {
	s := generate(t, friday, market.SeriesRequest{
		Symbol:          "SPY",
		Horizon:         market.NewTradingDaysHorizon(20),
		IncludeIntraday: true,
		IntradayDays:    3,
	})

	require.Len(t, s.Bars, 20+3*market.HoursPerDay)

	daily := map[time.Time]market.Bar{}
	hourly := map[time.Time][]market.Bar{}
	for _, b := range s.Bars {
		require.NoError(t, b.Validate())
		if b.Timestamp == nil {
			daily[b.TradingDay] = b
			continue
		}
		hourly[b.TradingDay] = append(hourly[b.TradingDay], b)
	}
	require.Len(t, hourly, 3)

	for day, bars := range hourly {
		require.Len(t, bars, market.HoursPerDay)
		d := daily[day]
		assert.True(t, bars[0].Open.Equal(d.Open), "first hour opens at the day's open")
		assert.True(t, bars[market.HoursPerDay-1].Close.Equal(d.Close), "last hour closes at the day's close")
		for h, b := range bars {
			assert.Equal(t, day.Add(time.Duration(h)*time.Hour), *b.Timestamp)
			assert.False(t, b.High.GreaterThan(d.High), "hour %d high above day high", h)
			assert.False(t, b.Low.LessThan(d.Low), "hour %d low below day low", h)
		}
	}
	// Most recent trading days get the hourly bars.
	assert.Contains(t, hourly, friday)
}

func TestGenerateZeroHorizon(t *testing.T) {
	s := generate(t, friday, market.SeriesRequest{
		Symbol:          "AAPL",
		Horizon:         market.NewTradingDaysHorizon(0),
		IncludeIntraday: true,
	})
	assert.Empty(t, s.Bars)
	assert.Equal(t, 100.0, s.EndPrice)
}

func TestGenerateInvalidRequest(t *testing.T) {
	g := NewGenerator(NewFakerWithSeed(1), friday)

	_, err := g.Generate(market.SeriesRequest{Symbol: "AAPL", Horizon: market.NewTradingDaysHorizon(-1)}, 100)
	require.ErrorIs(t, err, market.ErrInvalidRequest)

	_, err = g.Generate(market.SeriesRequest{Symbol: "AAPL", Horizon: market.NewTradingDaysHorizon(5)}, 0)
	require.ErrorIs(t, err, market.ErrInvalidRequest)
}

func TestGenerateInvariantsOverLongHorizon(t *testing.T) {
	for _, symbol := range []string{"AAPL", "X:BTCUSD", "I:SPX", "GLD"} {
		t.Run(symbol, func(t *testing.T) {
			h, err := market.ParseHorizon("MAX", friday)
			require.NoError(t, err)
			s := generate(t, friday, market.SeriesRequest{Symbol: symbol, Horizon: h})

			require.Len(t, s.Bars, 2520)
			for i, b := range s.Bars {
				require.NoError(t, b.Validate(), "bar %d", i)
				if i > 0 {
					require.True(t, b.TradingDay.After(s.Bars[i-1].TradingDay))
				}
			}
			last := s.Bars[len(s.Bars)-1]
			assert.Equal(t, roundPrice(s.EndPrice).String(), last.Close.String())
		})
	}
}

func TestGenerateSeededIsReproducible(t *testing.T) {
	req := market.SeriesRequest{Symbol: "NVDA", Horizon: market.NewTradingDaysHorizon(30)}
	a := generate(t, friday, req)
	b := generate(t, friday, req)
	require.Equal(t, len(a.Bars), len(b.Bars))
	for i := range a.Bars {
		assert.True(t, a.Bars[i].Close.Equal(b.Bars[i].Close))
	}
}

func TestSyntheticSource(t *testing.T) {
	src := NewSyntheticSource(nil, 99, friday)
	assert.Equal(t, "synthetic", src.Name())

	bars, err := src.Series(t.Context(), market.SeriesRequest{
		Symbol:  "X:BTCUSD",
		Horizon: market.NewTradingDaysHorizon(7),
	})
	require.NoError(t, err)
	require.Len(t, bars, 7)
	// Crypto resolved from the universe trades on the weekend.
	assert.Equal(t, time.Saturday, bars[0].TradingDay.Weekday())

	again, err := NewSyntheticSource(nil, 99, friday).Series(t.Context(), market.SeriesRequest{
		Symbol:  "X:BTCUSD",
		Horizon: market.NewTradingDaysHorizon(7),
	})
	require.NoError(t, err)
	assert.True(t, bars[6].Close.Equal(again[6].Close))
}
