package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
	"github.com/pgEdge/pgedge-marketgen/pkg/version"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// HTTPSource reads pages from a JSON provider API:
//
//	GET {base}/v1/bars/{symbol}?timespan=day&limit=N&cursor=C
//
// answering {"results":[{"t":ms,"o":..,"h":..,"l":..,"c":..,"ac":..,"v":..}],"next_cursor":"..."}.
type HTTPSource struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource creates a client for baseURL. An empty apiKey sends no
// Authorization header.
func NewHTTPSource(baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSHandshakeTimeout: 10 * time.Second,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
	}
}

type wireBar struct {
	T  int64            `json:"t"`
	O  decimal.Decimal  `json:"o"`
	H  decimal.Decimal  `json:"h"`
	L  decimal.Decimal  `json:"l"`
	C  decimal.Decimal  `json:"c"`
	AC *decimal.Decimal `json:"ac,omitempty"`
	V  int64            `json:"v"`
}

type wirePage struct {
	Results    []wireBar `json:"results"`
	NextCursor string    `json:"next_cursor"`
}

// FetchPage performs one request. Non-2xx responses are returned as
// classified StatusErrors.
func (s *HTTPSource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	q := url.Values{}
	q.Set("timespan", timespan(req.Granularity))
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	endpoint := fmt.Sprintf("%s/v1/bars/%s?%s", s.baseURL, url.PathEscape(req.Symbol), q.Encode())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %w", ErrClientError, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, ctxErr
		}
		return Page{}, Classify(fmt.Errorf("request for %s failed: %w", req.Symbol, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Page{}, Classify(&StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}

	var wp wirePage
	if err := json.NewDecoder(resp.Body).Decode(&wp); err != nil {
		return Page{}, Classify(fmt.Errorf("failed to decode page for %s: %w", req.Symbol, err))
	}

	page := Page{NextCursor: wp.NextCursor, Bars: make([]market.Bar, 0, len(wp.Results))}
	for _, w := range wp.Results {
		page.Bars = append(page.Bars, w.bar(req.Symbol, req.Granularity))
	}
	return page, nil
}

func (w wireBar) bar(symbol string, g market.Granularity) market.Bar {
	ts := time.UnixMilli(w.T).UTC()
	b := market.Bar{
		Symbol:        symbol,
		TradingDay:    market.Day(ts),
		Open:          w.O,
		High:          w.H,
		Low:           w.L,
		Close:         w.C,
		AdjustedClose: w.C,
		Volume:        w.V,
	}
	if w.AC != nil {
		b.AdjustedClose = *w.AC
	}
	if g == market.Hourly {
		b.Timestamp = &ts
	}
	return b
}

func timespan(g market.Granularity) string {
	if g == market.Hourly {
		return "hour"
	}
	return "day"
}
