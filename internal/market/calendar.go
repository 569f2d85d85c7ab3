package market

import "time"

// Calendar decides which dates are trading days for an asset class.
// Crypto trades every day; every other class is closed on Saturday and
// Sunday. Exchange holidays are not modeled.
//
// The zero value is ready to use.
type Calendar struct{}

// IsTradingDay reports whether date is a trading day for class.
func (Calendar) IsTradingDay(date time.Time, class AssetClass) bool {
	if class.TradesContinuously() {
		return true
	}
	switch date.UTC().Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// PreviousTradingDay returns the closest trading day strictly before date.
func (c Calendar) PreviousTradingDay(date time.Time, class AssetClass) time.Time {
	d := Day(date).AddDate(0, 0, -1)
	for !c.IsTradingDay(d, class) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// LastTradingDay returns date itself when it trades, otherwise the
// previous trading day.
func (c Calendar) LastTradingDay(date time.Time, class AssetClass) time.Time {
	d := Day(date)
	if c.IsTradingDay(d, class) {
		return d
	}
	return c.PreviousTradingDay(d, class)
}

// TradingDaysBack returns the n trading days ending at
// LastTradingDay(ref), oldest first.
func (c Calendar) TradingDaysBack(ref time.Time, n int, class AssetClass) []time.Time {
	if n <= 0 {
		return nil
	}
	days := make([]time.Time, n)
	d := c.LastTradingDay(ref, class)
	for i := n - 1; i >= 0; i-- {
		days[i] = d
		if i > 0 {
			d = c.PreviousTradingDay(d, class)
		}
	}
	return days
}

// CalendarDaysBack returns the n calendar days ending at ref, oldest first.
func (Calendar) CalendarDaysBack(ref time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	end := Day(ref)
	days := make([]time.Time, n)
	for i := range n {
		days[i] = end.AddDate(0, 0, i-n+1)
	}
	return days
}

// TradingDaysBetween counts trading days in [from, to].
func (c Calendar) TradingDaysBetween(from, to time.Time, class AssetClass) int {
	n := 0
	for d, end := Day(from), Day(to); !d.After(end); d = d.AddDate(0, 0, 1) {
		if c.IsTradingDay(d, class) {
			n++
		}
	}
	return n
}
