package adapters

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockProvider serves deterministic data for development and tests. Errors
// can be injected per operation and every call is counted.
type MockProvider struct {
	mu        sync.RWMutex
	quotes    map[string]*Quote
	series    map[string][]Candle // keyed by symbol|interval
	matches   []SymbolMatch
	errs      map[string]error // keyed by operation: "quote", "series", "search"
	latencyMs int

	quoteCalls  atomic.Int64
	seriesCalls atomic.Int64
	searchCalls atomic.Int64
}

// NewMockProvider creates a mock provider with a few predefined quotes
func NewMockProvider() *MockProvider {
	now := time.Now()
	m := &MockProvider{
		quotes:  map[string]*Quote{},
		series:  map[string][]Candle{},
		errs:    map[string]error{},
		matches: []SymbolMatch{},
	}
	for _, q := range []Quote{
		{Symbol: "AAPL", Price: 206.80, Open: 205.10, High: 207.50, Low: 204.90, PreviousClose: 205.00, Volume: 12500000},
		{Symbol: "MSFT", Price: 421.35, Open: 418.00, High: 423.10, Low: 417.60, PreviousClose: 419.90, Volume: 8200000},
		{Symbol: "SPY", Price: 541.20, Open: 539.80, High: 542.00, Low: 538.70, PreviousClose: 540.10, Volume: 41000000},
	} {
		q := q
		q.Change = q.Price - q.PreviousClose
		q.PercentChange = q.Change / q.PreviousClose * 100
		q.Timestamp = now.Add(-30 * time.Second)
		q.Source = "mock"
		m.quotes[q.Symbol] = &q
		m.matches = append(m.matches, SymbolMatch{Symbol: q.Symbol, Name: q.Symbol, Exchange: "MOCK", Type: "Common Stock", Currency: "USD", Source: "mock"})
	}
	return m
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Close() error { return nil }

func (m *MockProvider) wait(ctx context.Context) error {
	m.mu.RLock()
	latency := time.Duration(m.latencyMs) * time.Millisecond
	m.mu.RUnlock()
	if latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(latency):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockProvider) injected(op string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errs[op]
}

// FetchQuote returns a copy of the stored quote.
func (m *MockProvider) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	m.quoteCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.injected("quote"); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	m.mu.RLock()
	quote, ok := m.quotes[symbol]
	m.mu.RUnlock()
	if !ok {
		return nil, NewBadRequestError(m.Name(), symbol, 404, "symbol not found in mock data")
	}
	cp := *quote
	return &cp, nil
}

// FetchSeries returns the stored series for symbol and interval.
func (m *MockProvider) FetchSeries(ctx context.Context, symbol, interval string, points int) ([]Candle, error) {
	m.seriesCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.injected("series"); err != nil {
		return nil, err
	}

	m.mu.RLock()
	candles, ok := m.series[seriesKey(symbol, interval)]
	m.mu.RUnlock()
	if !ok {
		return nil, NewBadRequestError(m.Name(), symbol, 404, fmt.Sprintf("no %s series in mock data", interval))
	}
	if points > 0 && len(candles) > points {
		candles = candles[len(candles)-points:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

// SearchSymbols matches query against symbol and name prefixes.
func (m *MockProvider) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	m.searchCalls.Add(1)
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	if err := m.injected("search"); err != nil {
		return nil, err
	}

	q := strings.ToUpper(strings.TrimSpace(query))
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SymbolMatch
	for _, match := range m.matches {
		if strings.HasPrefix(match.Symbol, q) || strings.HasPrefix(strings.ToUpper(match.Name), q) {
			out = append(out, match)
		}
	}
	return out, nil
}

func seriesKey(symbol, interval string) string {
	return strings.ToUpper(symbol) + "|" + interval
}

// SetQuote stores or replaces a quote.
func (m *MockProvider) SetQuote(q Quote) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.Source == "" {
		q.Source = "mock"
	}
	m.quotes[strings.ToUpper(q.Symbol)] = &q
}

// SetSeries stores candles (oldest first) for symbol at interval.
func (m *MockProvider) SetSeries(symbol, interval string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series[seriesKey(symbol, interval)] = candles
}

// AddMatch appends a search result.
func (m *MockProvider) AddMatch(match SymbolMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matches = append(m.matches, match)
}

// FailWith makes every call to op ("quote", "series" or "search") return
// err until cleared with a nil error.
func (m *MockProvider) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// SetLatency allows tests to control simulated latency
func (m *MockProvider) SetLatency(ms int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyMs = ms
}

func (m *MockProvider) QuoteCalls() int64  { return m.quoteCalls.Load() }
func (m *MockProvider) SeriesCalls() int64 { return m.seriesCalls.Load() }
func (m *MockProvider) SearchCalls() int64 { return m.searchCalls.Load() }
