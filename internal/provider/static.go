package provider

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/pgEdge/pgedge-marketgen/internal/market"
)

// StaticSource serves fixed bars from memory, split into pages of
// pageSize. Cursors are page offsets.
type StaticSource struct {
	mu       sync.Mutex
	bars     map[string][]market.Bar
	pageSize int
	errs     map[string][]error
	calls    int
}

// NewStaticSource creates an empty static source.
func NewStaticSource(pageSize int) *StaticSource {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &StaticSource{
		bars:     make(map[string][]market.Bar),
		pageSize: pageSize,
		errs:     make(map[string][]error),
	}
}

// Add appends bars for their symbols.
func (s *StaticSource) Add(bars ...market.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range bars {
		s.bars[b.Symbol] = append(s.bars[b.Symbol], b)
	}
}

// FailNext makes the next fetches for symbol fail with errs, in order.
func (s *StaticSource) FailNext(symbol string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[symbol] = append(s.errs[symbol], errs...)
}

// Calls returns the number of FetchPage calls.
func (s *StaticSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// FetchPage returns the page at req.Cursor.
func (s *StaticSource) FetchPage(ctx context.Context, req PageRequest) (Page, error) {
	if err := ctx.Err(); err != nil {
		return Page{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if errs := s.errs[req.Symbol]; len(errs) > 0 {
		s.errs[req.Symbol] = errs[1:]
		return Page{}, Classify(errs[0])
	}

	var matching []market.Bar
	for _, b := range s.bars[req.Symbol] {
		if b.Granularity() == req.Granularity || (req.Granularity == "" && b.Granularity() == market.Daily) {
			matching = append(matching, b)
		}
	}

	offset := 0
	if req.Cursor != "" {
		n, err := strconv.Atoi(req.Cursor)
		if err != nil || n < 0 {
			return Page{}, Classify(&StatusError{StatusCode: 400, Body: fmt.Sprintf("bad cursor %q", req.Cursor)})
		}
		offset = n
	}
	size := s.pageSize
	if req.Limit > 0 && req.Limit < size {
		size = req.Limit
	}

	end := min(offset+size, len(matching))
	if offset > end {
		offset = end
	}
	page := Page{Bars: append([]market.Bar(nil), matching[offset:end]...)}
	if end < len(matching) {
		page.NextCursor = strconv.Itoa(end)
	}
	return page, nil
}
