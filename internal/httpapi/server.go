package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/gateway"
	"github.com/Rajchodisetti/marketgate/internal/indicators"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// MarketData is the gateway surface the HTTP layer serves.
type MarketData interface {
	Normalize(symbol string) (string, error)
	GetQuote(ctx context.Context, symbol string) (*adapters.Quote, error)
	GetHistory(ctx context.Context, symbol, rangeName string) (*adapters.CandleSeries, error)
	SearchSymbols(ctx context.Context, query string) ([]adapters.SymbolMatch, error)
	GetMultipleQuotes(ctx context.Context, symbols []string) (map[string]*adapters.Quote, error)
	Stats() gateway.Stats
	ClearCache()
}

type historyQuery struct {
	Symbol string `validate:"required,max=24"`
	Range  string `validate:"required,oneof=1D 5D 1M 3M 6M 1Y 5Y"`
}

type quotesQuery struct {
	Symbols []string `validate:"required,min=1,max=50,dive,required,max=24"`
}

type searchQuery struct {
	Q string `validate:"required,max=64"`
}

// Server exposes the gateway over HTTP.
type Server struct {
	data     MarketData
	hub      *Hub
	validate *validator.Validate
	mux      *http.ServeMux
}

// NewServer builds the route table. hub may be nil to disable /ws/quotes.
func NewServer(data MarketData, hub *Hub) *Server {
	s := &Server{
		data:     data,
		hub:      hub,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/quote/{symbol}", s.handleQuote)
	s.mux.HandleFunc("GET /api/quotes", s.handleQuotes)
	s.mux.HandleFunc("GET /api/history/{symbol}", s.handleHistory)
	s.mux.HandleFunc("GET /api/indicators/{symbol}", s.handleIndicators)
	s.mux.HandleFunc("GET /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/ranges", s.handleRanges)
	s.mux.HandleFunc("GET /admin/cache", s.handleStats)
	s.mux.HandleFunc("DELETE /admin/cache", s.handleClear)
	s.mux.Handle("GET /metrics", observ.Handler())
	s.mux.Handle("GET /health", observ.Health())
	if s.hub != nil {
		s.mux.Handle("GET /ws/quotes", s.hub)
	}
}

// ServeHTTP logs and times every request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	// r.Pattern is set once the mux has matched
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	labels := map[string]string{"route": route, "status": statusClass(rec.status)}
	observ.IncCounter("http_requests_total", labels)
	observ.RecordDuration("http_request", time.Since(start), map[string]string{"route": route})
	observ.Debug("http_request", map[string]any{
		"method":      r.Method,
		"path":        r.URL.Path,
		"status":      rec.status,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		observ.Log("http_listening", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	observ.Log("http_stopped", map[string]any{"addr": addr})
	return nil
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q, err := s.data.GetQuote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	query := quotesQuery{Symbols: splitList(r.URL.Query().Get("symbols"))}
	if err := s.validate.Struct(query); err != nil {
		writeValidationError(w, err)
		return
	}
	quotes, err := s.data.GetMultipleQuotes(r.Context(), query.Symbols)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sortedQuotes(quotes))
}

func (s *Server) historyParams(w http.ResponseWriter, r *http.Request, defaultRange string) (historyQuery, bool) {
	query := historyQuery{
		Symbol: r.PathValue("symbol"),
		Range:  strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("range"))),
	}
	if query.Range == "" {
		query.Range = defaultRange
	}
	if err := s.validate.Struct(query); err != nil {
		writeValidationError(w, err)
		return query, false
	}
	return query, true
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	query, ok := s.historyParams(w, r, "1D")
	if !ok {
		return
	}
	series, err := s.data.GetHistory(r.Context(), query.Symbol, query.Range)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	query, ok := s.historyParams(w, r, "6M")
	if !ok {
		return
	}
	series, err := s.data.GetHistory(r.Context(), query.Symbol, query.Range)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indicators.Summarize(series))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := searchQuery{Q: strings.TrimSpace(r.URL.Query().Get("q"))}
	if err := s.validate.Struct(query); err != nil {
		writeValidationError(w, err)
		return
	}
	matches, err := s.data.SearchSymbols(r.Context(), query.Q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": query.Q, "results": matches})
}

func (s *Server) handleRanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ranges": gateway.Ranges()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.data.Stats())
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.data.ClearCache()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
