package datagen

import (
	"context"
	"time"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// SyntheticSource serves random-walk series. Each call builds its own
// Faker and Generator, so calls for different symbols share no state.
type SyntheticSource struct {
	universe  *Universe
	seed      uint64
	reference time.Time
}

// NewSyntheticSource creates a source over universe. A non-zero seed
// makes every symbol's series reproducible.
func NewSyntheticSource(universe *Universe, seed uint64, reference time.Time) *SyntheticSource {
	if universe == nil {
		universe = DefaultUniverse()
	}
	return &SyntheticSource{universe: universe, seed: seed, reference: reference}
}

// Name identifies the source in logs and run records.
func (s *SyntheticSource) Name() string {
	return "synthetic"
}

// Series generates the bars for req.
func (s *SyntheticSource) Series(ctx context.Context, req market.SeriesRequest) ([]market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.AssetClass == "" {
		req.AssetClass = s.universe.Class(req.Symbol)
	}
	g := NewGenerator(NewFakerForSymbol(s.seed, req.Symbol), s.reference)
	series, err := g.Generate(req, s.universe.SeedPrice(req.Symbol))
	if err != nil {
		return nil, err
	}
	return series.Bars, nil
}
