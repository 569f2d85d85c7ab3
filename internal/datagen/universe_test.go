package datagen

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

func TestDefaultUniverse(t *testing.T) {
	u := DefaultUniverse()
	require.Greater(t, u.Len(), 20)

	a, ok := u.Lookup("x:btcusd")
	require.True(t, ok)
	assert.Equal(t, market.Crypto, a.Class)
	assert.Equal(t, 60000.0, u.SeedPrice("X:BTCUSD"))
	assert.Equal(t, market.ETF, u.Class("SPY"))

	symbols := u.Symbols()
	assert.IsIncreasing(t, symbols)
}

func TestUniverseSeedPriceFallback(t *testing.T) {
	u := DefaultUniverse()
	p1 := u.SeedPrice("ZZZZ")
	p2 := u.SeedPrice("zzzz")

	assert.Equal(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 10.0)
	assert.Less(t, p1, 500.0)
	assert.Equal(t, market.Crypto, u.Class("X:DOGEUSD"))
	assert.Greater(t, u.SeedPrice("X:DOGEUSD"), 0.0)
}

func TestNewUniverseRejectsBadAssets(t *testing.T) {
	_, err := NewUniverse([]Asset{{Symbol: "AAPL"}, {Symbol: "aapl"}})
	require.ErrorContains(t, err, "duplicate")

	_, err = NewUniverse([]Asset{{Symbol: " "}})
	require.Error(t, err)

	_, err = NewUniverse([]Asset{{Symbol: "AAPL", Class: "bond"}})
	require.Error(t, err)

	_, err = NewUniverse([]Asset{{Symbol: "AAPL", SeedPrice: -1}})
	require.Error(t, err)
}

func TestLoadUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	content := `assets:
  - symbol: aapl
    seed_price: 190.5
  - symbol: X:BTCUSD
  - symbol: GLD
    class: commodity
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "GLD", "X:BTCUSD"}, u.Symbols())
	assert.Equal(t, 190.5, u.SeedPrice("AAPL"))
	assert.Equal(t, market.Crypto, u.Class("X:BTCUSD"))

	_, err = LoadUniverse(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestGenerateUniverseRoundTrip(t *testing.T) {
	u := GenerateUniverse(25, NewFakerWithSeed(11))
	require.Equal(t, 25, u.Len())
	for _, a := range u.Assets() {
		assert.Contains(t, generatedClasses, a.Class)
		assert.NotEmpty(t, a.Name)
		assert.GreaterOrEqual(t, a.SeedPrice, 5.0)
	}

	path := filepath.Join(t.TempDir(), "generated.yaml")
	require.NoError(t, u.Save(path))

	loaded, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, u.Symbols(), loaded.Symbols())
	for _, a := range u.Assets() {
		assert.Equal(t, a.Class, loaded.Class(a.Symbol), a.Symbol)
	}
}

func TestGenerateUniverseMixesClasses(t *testing.T) {
	u := GenerateUniverse(300, NewFakerWithSeed(3))

	counts := make(map[market.AssetClass]int)
	for _, a := range u.Assets() {
		counts[a.Class]++
		switch a.Class {
		case market.Crypto:
			assert.True(t, strings.HasPrefix(a.Symbol, "X:"), a.Symbol)
		case market.Index:
			assert.True(t, strings.HasPrefix(a.Symbol, "I:"), a.Symbol)
		default:
			assert.Equal(t, market.Equity, market.ClassifySymbol(a.Symbol), a.Symbol)
		}
	}

	assert.Greater(t, counts[market.Equity], counts[market.ETF])
	assert.Greater(t, len(counts), 1)
}
