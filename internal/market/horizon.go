package market

import (
	"fmt"
	"strings"
	"time"
)

// Horizon is the length of a generated series. Calendar horizons count
// calendar days and flat-fill closed days; all others count trading days.
type Horizon struct {
	Name     string
	Days     int
	Calendar bool

	// yearToDate horizons resolve their day count per asset class.
	yearToDate bool
}

// Named horizons in trading days unless noted.
var horizons = map[string]Horizon{
	"7D":  {Name: "7D", Days: 7, Calendar: true},
	"1M":  {Name: "1M", Days: 30},
	"3M":  {Name: "3M", Days: 63},
	"6M":  {Name: "6M", Days: 126},
	"YTD": {Name: "YTD", yearToDate: true},
	"1Y":  {Name: "1Y", Days: 252},
	"3Y":  {Name: "3Y", Days: 756},
	"5Y":  {Name: "5Y", Days: 1260},
	"MAX": {Name: "MAX", Days: 2520},
}

// HorizonNames lists the named horizons in increasing length.
var HorizonNames = []string{"7D", "1M", "3M", "6M", "YTD", "1Y", "3Y", "5Y", "MAX"}

// ParseHorizon resolves a named horizon. YTD is resolved against ref
// using the weekday calendar; use Resolve for a class-specific count.
func ParseHorizon(name string, ref time.Time) (Horizon, error) {
	h, ok := horizons[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Horizon{}, fmt.Errorf("%w: unknown horizon %q (valid: %s)",
			ErrInvalidRequest, name, strings.Join(HorizonNames, ", "))
	}
	if h.yearToDate {
		h.Days = h.Resolve(ref, Equity)
	}
	return h, nil
}

// NewTradingDaysHorizon returns a horizon of n trading days.
func NewTradingDaysHorizon(n int) Horizon {
	return Horizon{Name: fmt.Sprintf("%dd", n), Days: n}
}

// NewCalendarDaysHorizon returns a horizon of n calendar days with
// closed days flat-filled.
func NewCalendarDaysHorizon(n int) Horizon {
	return Horizon{Name: fmt.Sprintf("%dcd", n), Days: n, Calendar: true}
}

// Resolve returns the number of days this horizon covers for class at ref.
func (h Horizon) Resolve(ref time.Time, class AssetClass) int {
	if !h.yearToDate {
		return h.Days
	}
	jan1 := time.Date(ref.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return Calendar{}.TradingDaysBetween(jan1, ref, class)
}

func (h Horizon) String() string {
	return h.Name
}
