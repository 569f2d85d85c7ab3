package market

import (
	"fmt"
	"slices"
	"strings"
)

// AssetClass drives calendar and volatility behavior.
type AssetClass string

const (
	Equity    AssetClass = "equity"
	ETF       AssetClass = "etf"
	Index     AssetClass = "index"
	Crypto    AssetClass = "crypto"
	Commodity AssetClass = "commodity"
	Forex     AssetClass = "forex"
)

// AssetClasses lists every known asset class.
var AssetClasses = []AssetClass{Equity, ETF, Index, Crypto, Commodity, Forex}

// knownETFs are tickers classified as ETFs without a prefix.
var knownETFs = []string{
	"SPY", "QQQ", "DIA", "IWM", "VTI", "VOO", "EFA", "EEM", "XLF", "XLK",
	"XLE", "XLV", "ARKK", "TLT", "HYG", "LQD",
}

// knownCommodities are commodity fund tickers.
var knownCommodities = []string{"GLD", "SLV", "USO", "UNG", "DBA", "DBC", "PPLT", "CPER"}

// majorIndexSymbols trade with index-level volume.
var majorIndexSymbols = []string{"SPY", "QQQ", "DIA", "IWM"}

// ParseAssetClass parses an asset class name.
func ParseAssetClass(s string) (AssetClass, error) {
	c := AssetClass(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(AssetClasses, c) {
		return c, nil
	}
	return "", fmt.Errorf("unknown asset class: %s", s)
}

// ClassifySymbol infers the asset class of a ticker from its prefix or
// from the known ETF and commodity lists. Unrecognized tickers are
// equities.
func ClassifySymbol(symbol string) AssetClass {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch {
	case strings.HasPrefix(s, "X:"):
		return Crypto
	case strings.HasPrefix(s, "I:"):
		return Index
	case strings.HasPrefix(s, "C:"):
		return Forex
	case slices.Contains(knownCommodities, s):
		return Commodity
	case slices.Contains(knownETFs, s):
		return ETF
	default:
		return Equity
	}
}

// IsMajorIndex reports whether a symbol is an index or one of the
// broad-market index funds.
func IsMajorIndex(symbol string) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.HasPrefix(s, "I:") || slices.Contains(majorIndexSymbols, s)
}

// TradesContinuously reports whether the class trades every calendar day.
func (c AssetClass) TradesContinuously() bool {
	return c == Crypto
}
