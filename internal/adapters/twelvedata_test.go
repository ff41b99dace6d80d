package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTwelveData(t *testing.T, handler http.HandlerFunc) *TwelveDataAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	td, err := NewTwelveDataAdapter(TwelveDataConfig{
		APIKey:             "test-key",
		BaseURL:            srv.URL,
		RateLimitPerMinute: 6000,
		TimeoutSeconds:     2,
	})
	require.NoError(t, err)
	return td
}

func TestTwelveDataFetchQuote(t *testing.T) {
	td := newTestTwelveData(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, "MSFT", r.URL.Query().Get("symbol"))
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(`{
			"symbol": "MSFT",
			"name": "Microsoft Corp",
			"exchange": "NASDAQ",
			"datetime": "2024-03-01",
			"timestamp": 1709298000,
			"open": "411.27",
			"high": "415.87",
			"low": "410.88",
			"close": "415.50",
			"volume": "17823400",
			"previous_close": "413.64",
			"change": "1.86",
			"percent_change": "0.44966"
		}`))
	})

	q, err := td.FetchQuote(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", q.Symbol)
	assert.InDelta(t, 415.50, q.Price, 1e-9)
	assert.InDelta(t, 413.64, q.PreviousClose, 1e-9)
	assert.InDelta(t, 0.44966, q.PercentChange, 1e-9)
	assert.Equal(t, int64(17823400), q.Volume)
	assert.Equal(t, int64(1709298000), q.Timestamp.Unix())
	assert.Equal(t, "twelvedata", q.Source)
}

func TestTwelveDataInBandErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		kind ErrorKind
	}{
		{"rate limited", `{"code": 429, "message": "You have run out of API credits for the current minute.", "status": "error"}`, KindRejected},
		{"server error", `{"code": 500, "message": "internal", "status": "error"}`, KindRejected},
		{"unknown symbol", `{"code": 400, "message": "**symbol** not found: ZZZZ", "status": "error"}`, KindBadRequest},
		{"missing symbol field", `{"close": "1.00"}`, KindMalformed},
		{"wrong type", `{"symbol": "MSFT", "close": {"x": 1}}`, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			td := newTestTwelveData(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := td.FetchQuote(context.Background(), "MSFT")
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
		})
	}
}

func TestTwelveDataFetchSeries(t *testing.T) {
	td := newTestTwelveData(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/time_series", r.URL.Path)
		assert.Equal(t, "15min", r.URL.Query().Get("interval"))
		assert.Equal(t, "130", r.URL.Query().Get("outputsize"))
		_, _ = w.Write([]byte(`{
			"meta": {"symbol": "MSFT", "interval": "15min"},
			"values": [
				{"datetime": "2024-03-01 15:45:00", "open": "415.00", "high": "415.90", "low": "414.80", "close": "415.50", "volume": "900000"},
				{"datetime": "2024-03-01 15:30:00", "open": "414.20", "high": "415.10", "low": "414.00", "close": "415.00", "volume": "700000"}
			],
			"status": "ok"
		}`))
	})

	candles, err := td.FetchSeries(context.Background(), "MSFT", "15min", 130)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 30, candles[0].Timestamp.Minute())
	assert.Equal(t, 45, candles[1].Timestamp.Minute())
	assert.InDelta(t, 415.50, candles[1].Close, 1e-9)
	assert.Equal(t, int64(700000), candles[0].Volume)
}

func TestTwelveDataEmptySeriesIsMalformed(t *testing.T) {
	td := newTestTwelveData(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"meta": {}, "values": [], "status": "ok"}`))
	})
	_, err := td.FetchSeries(context.Background(), "MSFT", "1day", 22)
	require.Error(t, err)
	assert.Equal(t, KindMalformed, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestTwelveDataSearch(t *testing.T) {
	td := newTestTwelveData(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/symbol_search", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [
			{"symbol": "AAPL", "instrument_name": "Apple Inc", "exchange": "NASDAQ", "instrument_type": "Common Stock", "currency": "USD"}
		], "status": "ok"}`))
	})

	matches, err := td.SearchSymbols(context.Background(), "app")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, SymbolMatch{
		Symbol:   "AAPL",
		Name:     "Apple Inc",
		Exchange: "NASDAQ",
		Type:     "Common Stock",
		Currency: "USD",
		Source:   "twelvedata",
	}, matches[0])
}

func TestTwelveDataPacingBurstAndOverflow(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"symbol": "MSFT", "open": "411.27", "high": "415.87", "low": "410.88", "close": "415.50", "volume": "100"}`))
	}))
	t.Cleanup(srv.Close)
	td, err := NewTwelveDataAdapter(TwelveDataConfig{
		APIKey:             "test-key",
		BaseURL:            srv.URL,
		RateLimitPerMinute: 3,
		TimeoutSeconds:     2,
	})
	require.NoError(t, err)

	// a full minute's allowance goes out without waiting
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := td.FetchQuote(context.Background(), "MSFT")
		require.NoError(t, err)
	}
	assert.Less(t, time.Since(start), time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = td.FetchQuote(ctx, "MSFT")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPacingWait)
	assert.Empty(t, KindOf(err), "not an upstream failure")
	assert.False(t, IsRetryable(err))
	assert.EqualValues(t, 3, hits.Load())
}
