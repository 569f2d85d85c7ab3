package datagen

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// Asset is one symbol of the universe. SeedPrice is only a generation
// starting point.
type Asset struct {
	Symbol    string            `yaml:"symbol"`
	Name      string            `yaml:"name,omitempty"`
	Class     market.AssetClass `yaml:"class,omitempty"`
	SeedPrice float64           `yaml:"seed_price,omitempty"`
}

// Universe is the set of known symbols. It is read-only after
// construction and safe for concurrent use.
type Universe struct {
	assets   []Asset
	bySymbol map[string]Asset
}

type universeFile struct {
	Assets []Asset `yaml:"assets"`
}

var defaultAssets = []Asset{
	{Symbol: "AAPL", Name: "Apple Inc.", SeedPrice: 190},
	{Symbol: "MSFT", Name: "Microsoft Corporation", SeedPrice: 410},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", SeedPrice: 150},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", SeedPrice: 180},
	{Symbol: "NVDA", Name: "NVIDIA Corporation", SeedPrice: 120},
	{Symbol: "META", Name: "Meta Platforms Inc.", SeedPrice: 480},
	{Symbol: "TSLA", Name: "Tesla Inc.", SeedPrice: 220},
	{Symbol: "JPM", Name: "JPMorgan Chase & Co.", SeedPrice: 200},
	{Symbol: "V", Name: "Visa Inc.", SeedPrice: 275},
	{Symbol: "JNJ", Name: "Johnson & Johnson", SeedPrice: 155},
	{Symbol: "WMT", Name: "Walmart Inc.", SeedPrice: 68},
	{Symbol: "XOM", Name: "Exxon Mobil Corporation", SeedPrice: 115},
	{Symbol: "SPY", Name: "SPDR S&P 500 ETF Trust", SeedPrice: 540},
	{Symbol: "QQQ", Name: "Invesco QQQ Trust", SeedPrice: 470},
	{Symbol: "DIA", Name: "SPDR Dow Jones Industrial Average ETF", SeedPrice: 400},
	{Symbol: "IWM", Name: "iShares Russell 2000 ETF", SeedPrice: 210},
	{Symbol: "VTI", Name: "Vanguard Total Stock Market ETF", SeedPrice: 265},
	{Symbol: "GLD", Name: "SPDR Gold Shares", SeedPrice: 215},
	{Symbol: "SLV", Name: "iShares Silver Trust", SeedPrice: 27},
	{Symbol: "USO", Name: "United States Oil Fund", SeedPrice: 75},
	{Symbol: "I:SPX", Name: "S&P 500 Index", SeedPrice: 5400},
	{Symbol: "I:NDX", Name: "Nasdaq 100 Index", SeedPrice: 19000},
	{Symbol: "I:DJI", Name: "Dow Jones Industrial Average", SeedPrice: 40000},
	{Symbol: "X:BTCUSD", Name: "Bitcoin", SeedPrice: 60000},
	{Symbol: "X:ETHUSD", Name: "Ethereum", SeedPrice: 3000},
	{Symbol: "X:SOLUSD", Name: "Solana", SeedPrice: 140},
	{Symbol: "C:EURUSD", Name: "Euro / US Dollar", SeedPrice: 1.09},
	{Symbol: "C:GBPUSD", Name: "British Pound / US Dollar", SeedPrice: 1.27},
}

// DefaultUniverse returns the built-in symbol universe.
func DefaultUniverse() *Universe {
	u, err := NewUniverse(defaultAssets)
	if err != nil {
		panic(err)
	}
	return u
}

// NewUniverse builds a universe, normalizing symbols and inferring
// missing asset classes.
func NewUniverse(assets []Asset) (*Universe, error) {
	u := &Universe{bySymbol: make(map[string]Asset, len(assets))}
	for _, a := range assets {
		a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
		if a.Symbol == "" {
			return nil, fmt.Errorf("universe asset with empty symbol")
		}
		if _, dup := u.bySymbol[a.Symbol]; dup {
			return nil, fmt.Errorf("duplicate symbol in universe: %s", a.Symbol)
		}
		if a.Class == "" {
			a.Class = market.ClassifySymbol(a.Symbol)
		} else {
			c, err := market.ParseAssetClass(string(a.Class))
			if err != nil {
				return nil, fmt.Errorf("symbol %s: %w", a.Symbol, err)
			}
			a.Class = c
		}
		if a.SeedPrice < 0 {
			return nil, fmt.Errorf("symbol %s: negative seed price", a.Symbol)
		}
		u.assets = append(u.assets, a)
		u.bySymbol[a.Symbol] = a
	}
	return u, nil
}

// LoadUniverse reads a YAML universe file.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file: %w", err)
	}
	var f universeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse universe file %s: %w", path, err)
	}
	return NewUniverse(f.Assets)
}

// Save writes the universe as YAML.
func (u *Universe) Save(path string) error {
	data, err := yaml.Marshal(universeFile{Assets: u.assets})
	if err != nil {
		return fmt.Errorf("failed to encode universe: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write universe file: %w", err)
	}
	return nil
}

// Generated universes mix asset classes by these weights.
var (
	generatedClasses = []market.AssetClass{market.Equity, market.ETF, market.Crypto, market.Index}
	generatedWeights = []int{80, 10, 7, 3}
	fundSuffixes     = []string{"Growth ETF", "Dividend ETF", "Total Market ETF", "Sector Fund"}
	cryptoQuotes     = []string{"USD", "EUR", "USDT"}
)

// GenerateUniverse creates n synthetic assets, mostly equities named
// after gofakeit companies, with some ETFs, crypto pairs and indexes.
// Every generated ticker carries its class explicitly.
func GenerateUniverse(n int, f *Faker) *Universe {
	assets := make([]Asset, 0, n)
	seen := make(map[string]bool, n)
	for len(assets) < n {
		a := generateAsset(f, ChooseWeighted(f, generatedClasses, generatedWeights))
		if seen[a.Symbol] {
			continue
		}
		seen[a.Symbol] = true
		assets = append(assets, a)
	}
	u, _ := NewUniverse(assets)
	return u
}

func generateAsset(f *Faker, class market.AssetClass) Asset {
	switch class {
	case market.ETF:
		return Asset{
			Symbol:    plainTicker(f),
			Name:      f.Company() + " " + Choose(f, fundSuffixes),
			Class:     market.ETF,
			SeedPrice: float64(f.Int(2000, 60000)) / 100,
		}
	case market.Crypto:
		base := f.Letters(f.Int(3, 4))
		return Asset{
			Symbol:    "X:" + base + Choose(f, cryptoQuotes),
			Name:      base + " Token",
			Class:     market.Crypto,
			SeedPrice: float64(f.Int(10, 90000)),
		}
	case market.Index:
		return Asset{
			Symbol:    "I:" + f.Letters(3),
			Name:      f.Company() + " Index",
			Class:     market.Index,
			SeedPrice: float64(f.Int(1000, 40000)),
		}
	default:
		return Asset{
			Symbol:    plainTicker(f),
			Name:      f.Company(),
			Class:     market.Equity,
			SeedPrice: float64(f.Int(500, 50000)) / 100,
		}
	}
}

// plainTicker returns a 3-4 letter ticker that no prefix or known fund
// list would classify as anything but an equity.
func plainTicker(f *Faker) string {
	for {
		s := f.Letters(f.Int(3, 4))
		if market.ClassifySymbol(s) == market.Equity {
			return s
		}
	}
}

// Assets returns the universe in definition order.
func (u *Universe) Assets() []Asset {
	return append([]Asset(nil), u.assets...)
}

// Symbols returns all symbols, sorted.
func (u *Universe) Symbols() []string {
	symbols := make([]string, 0, len(u.assets))
	for _, a := range u.assets {
		symbols = append(symbols, a.Symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Len returns the number of assets.
func (u *Universe) Len() int {
	return len(u.assets)
}

// Lookup returns the asset for a symbol.
func (u *Universe) Lookup(symbol string) (Asset, bool) {
	a, ok := u.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return a, ok
}

// Class returns the asset class of a symbol, inferred when unknown.
func (u *Universe) Class(symbol string) market.AssetClass {
	if a, ok := u.Lookup(symbol); ok {
		return a.Class
	}
	return market.ClassifySymbol(symbol)
}

// SeedPrice returns the configured seed price, or a stable price derived
// from the symbol hash when none is set.
func (u *Universe) SeedPrice(symbol string) float64 {
	if a, ok := u.Lookup(symbol); ok && a.SeedPrice > 0 {
		return a.SeedPrice
	}
	return HashedSeedPrice(symbol, u.Class(symbol))
}

// HashedSeedPrice maps a symbol to a stable price in a class-typical range.
func HashedSeedPrice(symbol string, class market.AssetClass) float64 {
	h := SymbolHash(symbol)
	switch class {
	case market.Crypto:
		return float64(100 + h%90000)
	case market.Index:
		return float64(1000 + h%40000)
	case market.Forex:
		return 0.5 + float64(h%150)/100
	default:
		return float64(1000+h%49000) / 100
	}
}
