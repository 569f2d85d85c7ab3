package market

import (
	"fmt"
	"strings"
)

// DefaultIntradayDays is the number of recent trading days that receive
// hourly bars when intraday generation is requested.
const DefaultIntradayDays = 5

// HoursPerDay is the number of hourly bars generated per intraday day.
const HoursPerDay = 24

// SeriesRequest describes one symbol's series. It is created per
// ingestion unit and never persisted.
type SeriesRequest struct {
	Symbol          string
	AssetClass      AssetClass
	Horizon         Horizon
	IncludeIntraday bool
	IntradayDays    int
}

// Validate reports requests that cannot be generated.
func (r SeriesRequest) Validate() error {
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidRequest)
	}
	if r.Horizon.Days < 0 {
		return fmt.Errorf("%w: %s negative horizon %d", ErrInvalidRequest, r.Symbol, r.Horizon.Days)
	}
	if r.IntradayDays < 0 {
		return fmt.Errorf("%w: %s negative intraday days %d", ErrInvalidRequest, r.Symbol, r.IntradayDays)
	}
	if r.AssetClass != "" {
		if _, err := ParseAssetClass(string(r.AssetClass)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRequest, r.Symbol, err)
		}
	}
	return nil
}

// Class returns the request's asset class, inferring it from the symbol
// when unset.
func (r SeriesRequest) Class() AssetClass {
	if r.AssetClass != "" {
		return r.AssetClass
	}
	return ClassifySymbol(r.Symbol)
}

// IntradayWindow returns the number of intraday days to generate.
func (r SeriesRequest) IntradayWindow() int {
	if !r.IncludeIntraday {
		return 0
	}
	if r.IntradayDays == 0 {
		return DefaultIntradayDays
	}
	return r.IntradayDays
}
