package datagen

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// Session selects the volatility and volume profile of a bar.
type Session int

const (
	// SessionDaily is a full trading day.
	SessionDaily Session = iota
	// SessionOpen is an hour inside the modeled trading window.
	SessionOpen
	// SessionClosed is an hour outside the modeled trading window.
	SessionClosed
	// SessionPartial is the 09:00 hour; the window opens at 09:30.
	SessionPartial
)

const (
	cryptoVolatility  = 0.03
	defaultVolatility = 0.015

	openSessionScale   = 0.3
	closedSessionScale = 0.1

	baseVolume       = 1_000_000
	highVolumeBase   = 10_000_000
	closedVolumeCut  = 0.2
	minVolumeScale   = 0.7
	maxVolumeScale   = 1.3
	minPrice         = 0.01
	priceDecimals    = 2
	sessionOpenHour  = 9 // window opens 09:30
	sessionCloseHour = 16
)

// Profile is the per-symbol input to the walk.
type Profile struct {
	Class      market.AssetClass
	HighVolume bool
}

// ProfileFor builds the walk profile of a symbol.
func ProfileFor(symbol string, class market.AssetClass) Profile {
	return Profile{
		Class:      class,
		HighVolume: class == market.Crypto || market.IsMajorIndex(symbol),
	}
}

// SessionAt returns the session of the hourly bar starting at hour.
// Hours are bar_time hours in UTC, and the modeled trading window is
// 09:30-16:00 on that clock; no exchange time zone is applied. The 09:00
// bar is half in session. Crypto is always in session.
func SessionAt(class market.AssetClass, hour int) Session {
	switch {
	case class.TradesContinuously():
		return SessionOpen
	case hour == sessionOpenHour:
		return SessionPartial
	case hour > sessionOpenHour && hour < sessionCloseHour:
		return SessionOpen
	default:
		return SessionClosed
	}
}

// Volatility returns the maximum relative move of one bar.
func (p Profile) Volatility(s Session) float64 {
	v := defaultVolatility
	if p.Class == market.Crypto {
		v = cryptoVolatility
	}
	switch s {
	case SessionOpen:
		return v * openSessionScale
	case SessionClosed:
		return v * closedSessionScale
	case SessionPartial:
		return v * (openSessionScale + closedSessionScale) / 2
	default:
		return v
	}
}

func (p Profile) volumeBase(s Session) float64 {
	base := float64(baseVolume)
	if p.HighVolume {
		base = highVolumeBase
	}
	switch s {
	case SessionOpen:
		return base / market.HoursPerDay
	case SessionClosed:
		return base / market.HoursPerDay * closedVolumeCut
	case SessionPartial:
		return base / market.HoursPerDay * (1 + closedVolumeCut) / 2
	default:
		return base
	}
}

// Candle holds unrounded bar fields. Rounding happens in Bar so that a
// running walk never compounds rounding error.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Walk is the random-walk bar generator.
type Walk struct {
	faker *Faker
}

// NewWalk creates a walk drawing from f.
func NewWalk(f *Faker) *Walk {
	return &Walk{faker: f}
}

// NextBar draws one bar opening at open.
func (w *Walk) NextBar(open float64, p Profile, s Session) Candle {
	v := p.Volatility(s)
	change := w.faker.Float64(-v, v)
	closePrice := math.Max(open*(1+change), minPrice)

	iv := v / 2
	high := math.Max(open, closePrice) * (1 + w.faker.Float64(0, iv))
	low := math.Min(open, closePrice) * (1 - w.faker.Float64(0, iv))

	volume := p.volumeBase(s) * w.faker.Float64(minVolumeScale, maxVolumeScale)

	return Candle{
		Open:   open,
		High:   high,
		Low:    math.Max(low, minPrice/2),
		Close:  closePrice,
		Volume: int64(math.Round(volume)),
	}
}

// FlatBar is a closed-market bar: no movement and no volume.
func (w *Walk) FlatBar(prevClose float64) Candle {
	return Candle{Open: prevClose, High: prevClose, Low: prevClose, Close: prevClose}
}

// Bar rounds the candle to cents and attaches its key fields. Rounding
// is monotone, so the OHLC invariants of the candle carry over.
func (c Candle) Bar(symbol string, day time.Time, ts *time.Time) market.Bar {
	closePrice := roundPrice(c.Close)
	return market.Bar{
		Symbol:        symbol,
		TradingDay:    day,
		Timestamp:     ts,
		Open:          roundPrice(c.Open),
		High:          roundPrice(c.High),
		Low:           roundPrice(c.Low),
		Close:         closePrice,
		AdjustedClose: closePrice,
		Volume:        c.Volume,
	}
}

func roundPrice(v float64) decimal.Decimal {
	d := decimal.NewFromFloat(v).Round(priceDecimals)
	if d.LessThan(decimal.NewFromFloat(minPrice)) {
		return decimal.NewFromFloat(minPrice)
	}
	return d
}
