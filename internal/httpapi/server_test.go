package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/config"
	"github.com/Rajchodisetti/marketgate/internal/gateway"
)

func newTestGateway(t *testing.T) (*gateway.Gateway, *adapters.MockProvider) {
	t.Helper()
	cfg := config.Default()
	cfg.Upstream.Provider = "mock"
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.DelayMs = 0
	cfg.Budget.Limit = 100

	mock := adapters.NewMockProvider()
	gw := gateway.New(mock, cfg)
	t.Cleanup(func() { _ = gw.Close() })
	return gw, mock
}

func newTestServer(t *testing.T) (*Server, *Hub, *adapters.MockProvider) {
	t.Helper()
	gw, mock := newTestGateway(t)
	hub := NewHub(gw, HubConfig{Interval: time.Hour, DefaultSymbols: []string{"SPY"}})
	return NewServer(gw, hub), hub, mock
}

func do(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestQuoteRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/quote/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	q := decode[adapters.Quote](t, rec)
	assert.Equal(t, "AAPL", q.Symbol)
	assert.Equal(t, 206.80, q.Price)
	assert.False(t, q.IsSynthetic)

	rec = do(t, srv, http.MethodGet, "/api/quote/ZZZZ")
	require.Equal(t, http.StatusOK, rec.Code, "unknown symbols are synthesized, not failed")
	assert.True(t, decode[adapters.Quote](t, rec).IsSynthetic)

	rec = do(t, srv, http.MethodGet, "/api/quote/a%20b")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorBody](t, rec).Error, "invalid symbol")

	rec = do(t, srv, http.MethodPost, "/api/quote/AAPL")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestQuotesRoute(t *testing.T) {
	srv, _, mock := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/quotes?symbols=msft,%20AAPL,,aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	quotes := decode[[]adapters.Quote](t, rec)
	require.Len(t, quotes, 2)
	assert.Equal(t, "AAPL", quotes[0].Symbol)
	assert.Equal(t, "MSFT", quotes[1].Symbol)
	assert.EqualValues(t, 2, mock.QuoteCalls())

	rec = do(t, srv, http.MethodGet, "/api/quotes")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"symbols: required"}, decode[errorBody](t, rec).Fields)
}

func TestHistoryRoute(t *testing.T) {
	srv, _, mock := newTestServer(t)
	candles := make([]adapters.Candle, 30)
	for i := range candles {
		candles[i] = adapters.Candle{Timestamp: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i), Open: 10, High: 11, Low: 9, Close: 10.5}
	}
	mock.SetSeries("AAPL", "1day", candles)

	rec := do(t, srv, http.MethodGet, "/api/history/AAPL?range=1m")
	require.Equal(t, http.StatusOK, rec.Code)
	series := decode[adapters.CandleSeries](t, rec)
	assert.Equal(t, "1M", series.Range)
	assert.Len(t, series.Candles, 22)
	assert.False(t, series.IsSynthetic)

	rec = do(t, srv, http.MethodGet, "/api/history/MSFT")
	require.Equal(t, http.StatusOK, rec.Code)
	series = decode[adapters.CandleSeries](t, rec)
	assert.Equal(t, "1D", series.Range, "defaults to one day")
	assert.True(t, series.IsSynthetic)

	rec = do(t, srv, http.MethodGet, "/api/history/AAPL?range=2W")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"range: oneof"}, decode[errorBody](t, rec).Fields)
}

func TestIndicatorsRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/indicators/NVDA")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NVDA", body["symbol"])
	assert.Equal(t, "6M", body["range"])
	assert.Equal(t, true, body["is_synthetic"])
	assert.NotNil(t, body["rsi14"])
	assert.NotNil(t, body["bollinger_upper"])
}

func TestSearchRoute(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/search?q=MS")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Query   string                 `json:"query"`
		Results []adapters.SymbolMatch `json:"results"`
	}](t, rec)
	assert.Equal(t, "MS", body.Query)
	require.Len(t, body.Results, 1)
	assert.Equal(t, "MSFT", body.Results[0].Symbol)

	rec = do(t, srv, http.MethodGet, "/api/search?q=%20")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminCacheRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t)
	do(t, srv, http.MethodGet, "/api/quote/AAPL")

	rec := do(t, srv, http.MethodGet, "/admin/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[gateway.Stats](t, rec)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, []string{"quote:AAPL"}, stats.Keys)
	assert.Equal(t, 1, stats.RequestsUsedThisWindow)
	assert.True(t, stats.CanAcquireNow)
	assert.Len(t, stats.Breakers, 3)

	rec = do(t, srv, http.MethodDelete, "/admin/cache")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodGet, "/admin/cache")
	assert.Zero(t, decode[gateway.Stats](t, rec).Size)
}

func TestOperationalRoutes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	do(t, srv, http.MethodGet, "/api/quote/AAPL")
	rec = do(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	rec = do(t, srv, http.MethodGet, "/api/ranges")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"5Y"`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/nope").Code)
}

func wsURL(ts *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/quotes" + query
}

func readQuotes(t *testing.T, conn *websocket.Conn) quotesMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg quotesMessage
	require.NoError(t, json.Unmarshal(b, &msg))
	return msg
}

func TestWebsocketBroadcast(t *testing.T) {
	srv, hub, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?symbols=aapl,msft"), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	snapshot := readQuotes(t, conn)
	assert.Equal(t, "quotes", snapshot.Type)
	require.Len(t, snapshot.Quotes, 2)
	assert.Equal(t, "AAPL", snapshot.Quotes[0].Symbol)
	assert.Equal(t, "MSFT", snapshot.Quotes[1].Symbol)

	other, _, err := websocket.DefaultDialer.Dial(wsURL(ts, ""), nil)
	require.NoError(t, err)
	defer other.Close()
	defaults := readQuotes(t, other)
	require.Len(t, defaults.Quotes, 1)
	assert.Equal(t, "SPY", defaults.Quotes[0].Symbol)

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, hub.Broadcast(context.Background()))
	assert.Len(t, readQuotes(t, conn).Quotes, 2)
	assert.Len(t, readQuotes(t, other).Quotes, 1)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebsocketRejectsBadSymbols(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "?symbols=AAPL,a%20b"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHubDropsSlowSubscriber(t *testing.T) {
	gw, _ := newTestGateway(t)
	hub := NewHub(gw, HubConfig{SendBuffer: 1})
	sub := &subscriber{id: "slow", symbols: []string{"AAPL"}, send: make(chan []byte, 1)}
	hub.clients[sub] = struct{}{}

	assert.Equal(t, 1, hub.Broadcast(context.Background()))
	assert.Zero(t, hub.Broadcast(context.Background()), "buffer still full")
	assert.Zero(t, hub.Clients())
	assert.True(t, sub.closed)

	// buffered message is still drained before the close
	_, ok := <-sub.send
	assert.True(t, ok)
	_, ok = <-sub.send
	assert.False(t, ok)
}

func TestBroadcastWithoutSubscribers(t *testing.T) {
	gw, mock := newTestGateway(t)
	hub := NewHub(gw, HubConfig{})
	assert.Zero(t, hub.Broadcast(context.Background()))
	assert.Zero(t, mock.QuoteCalls())
}
