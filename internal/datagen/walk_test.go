package datagen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

func TestProfileVolatility(t *testing.T) {
	equity := ProfileFor("AAPL", market.Equity)
	crypto := ProfileFor("X:BTCUSD", market.Crypto)

	assert.InDelta(t, 0.015, equity.Volatility(SessionDaily), 1e-12)
	assert.InDelta(t, 0.03, crypto.Volatility(SessionDaily), 1e-12)
	assert.Less(t, equity.Volatility(SessionOpen), equity.Volatility(SessionDaily))
	assert.Less(t, equity.Volatility(SessionClosed), equity.Volatility(SessionOpen))

	assert.False(t, equity.HighVolume)
	assert.True(t, crypto.HighVolume)
	assert.True(t, ProfileFor("QQQ", market.ETF).HighVolume)
}

func TestSessionAt(t *testing.T) {
	assert.Equal(t, SessionClosed, SessionAt(market.Equity, 8))
	assert.Equal(t, SessionPartial, SessionAt(market.Equity, 9))
	assert.Equal(t, SessionOpen, SessionAt(market.Equity, 10))
	assert.Equal(t, SessionOpen, SessionAt(market.Equity, 15))
	assert.Equal(t, SessionClosed, SessionAt(market.Equity, 16))
	assert.Equal(t, SessionOpen, SessionAt(market.Crypto, 3))
	assert.Equal(t, SessionOpen, SessionAt(market.Crypto, 9))
}

func TestPartialSessionSitsBetweenOpenAndClosed(t *testing.T) {
	p := ProfileFor("AAPL", market.Equity)
	assert.Less(t, p.Volatility(SessionClosed), p.Volatility(SessionPartial))
	assert.Less(t, p.Volatility(SessionPartial), p.Volatility(SessionOpen))
	assert.Less(t, p.volumeBase(SessionClosed), p.volumeBase(SessionPartial))
	assert.Less(t, p.volumeBase(SessionPartial), p.volumeBase(SessionOpen))
}

func TestNextBarBounds(t *testing.T) {
	w := NewWalk(NewFakerWithSeed(3))
	day := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)

	for _, s := range []Session{SessionDaily, SessionOpen, SessionPartial, SessionClosed} {
		p := ProfileFor("AAPL", market.Equity)
		v := p.Volatility(s)
		open := 100.0
		for i := 0; i < 500; i++ {
			c := w.NextBar(open, p, s)
			require.InDelta(t, open, c.Close, open*v+1e-9)
			require.GreaterOrEqual(t, c.High, max(c.Open, c.Close))
			require.LessOrEqual(t, c.Low, min(c.Open, c.Close))
			require.GreaterOrEqual(t, c.Volume, int64(0))
			require.NoError(t, c.Bar("AAPL", day, nil).Validate())
			open = c.Close
		}
	}
}

func TestNextBarVolumeRange(t *testing.T) {
	w := NewWalk(NewFakerWithSeed(5))

	for i := 0; i < 200; i++ {
		c := w.NextBar(50, ProfileFor("AAPL", market.Equity), SessionDaily)
		assert.GreaterOrEqual(t, c.Volume, int64(700_000))
		assert.LessOrEqual(t, c.Volume, int64(1_300_000))

		c = w.NextBar(50, ProfileFor("X:BTCUSD", market.Crypto), SessionDaily)
		assert.GreaterOrEqual(t, c.Volume, int64(7_000_000))

		c = w.NextBar(50, ProfileFor("AAPL", market.Equity), SessionClosed)
		assert.LessOrEqual(t, c.Volume, int64(10_834))
	}
}

func TestFlatBar(t *testing.T) {
	w := NewWalk(NewFakerWithSeed(1))
	b := w.FlatBar(123.456).Bar("MSFT", time.Date(2025, time.January, 11, 0, 0, 0, 0, time.UTC), nil)

	assert.Equal(t, "123.46", b.Open.StringFixed(2))
	assert.True(t, b.Open.Equal(b.High))
	assert.True(t, b.Open.Equal(b.Low))
	assert.True(t, b.Open.Equal(b.Close))
	assert.Zero(t, b.Volume)
	require.NoError(t, b.Validate())
}

func TestCandleRounding(t *testing.T) {
	c := Candle{Open: 10.004, High: 10.006, Low: 9.994, Close: 10.005, Volume: 10}
	b := c.Bar("AAPL", time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC), nil)

	assert.Equal(t, "10", b.Open.String())
	assert.Equal(t, "10.01", b.High.String())
	assert.Equal(t, "9.99", b.Low.String())
	assert.True(t, b.Close.Equal(b.AdjustedClose))
	require.NoError(t, b.Validate())
}
