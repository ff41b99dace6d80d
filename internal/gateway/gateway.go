package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/config"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

// QuoteSource is the part of the gateway quote consumers depend on.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (*adapters.Quote, error)
}

type ttls struct {
	quote, history, search, fallback time.Duration
}

// Gateway is the single entry point for market data. Every read goes
// cache → breaker pre-check → rate budget → breaker(retry(upstream)), and
// any failure along the way is answered with synthesized data.
type Gateway struct {
	provider   adapters.Provider
	normalizer *adapters.SymbolNormalizer
	cache      *Cache
	budget     *RateBudget
	queue      *RequestQueue
	breakers   *BreakerSet
	retry      Retry
	synth      *Synthesizer

	ttl             ttls
	upstreamTimeout time.Duration
	workers         int

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now for the cache, budget, breakers and synthesizer.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New wires a gateway around provider using cfg.
func New(provider adapters.Provider, cfg config.Root, opts ...Option) *Gateway {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	budget := NewRateBudget(cfg.Budget.Limit, cfg.Budget.Window(), o.now)
	workers := cfg.Server.Workers
	if workers <= 0 {
		workers = 4
	}
	timeout := cfg.Upstream.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Gateway{
		provider:   provider,
		normalizer: adapters.NewSymbolNormalizer(),
		cache:      NewCache(cfg.Cache.MaxEntries, o.now),
		budget:     budget,
		queue: NewRequestQueue(budget, QueueConfig{
			MaxDepth: cfg.Budget.QueueMaxDepth,
			MaxWait:  cfg.Budget.QueueMaxWait(),
			Tick:     cfg.Budget.DrainInterval(),
		}, o.now),
		breakers: NewBreakerSet(cfg.Breaker.Threshold, cfg.Breaker.OpenTimeout(), o.now,
			EndpointQuotes, EndpointHistory, EndpointSearch),
		retry: Retry{
			MaxAttempts: cfg.Retry.MaxAttempts,
			Delay:       cfg.Retry.Delay(),
			Linear:      cfg.Retry.Linear,
		},
		synth: NewSynthesizer(cfg.Synth.Timezone, o.now),
		ttl: ttls{
			quote:    cfg.Cache.QuoteTTL(),
			history:  cfg.Cache.HistoryTTL(),
			search:   cfg.Cache.SearchTTL(),
			fallback: cfg.Cache.FallbackTTL(),
		},
		upstreamTimeout: timeout,
		workers:         workers,
	}
}

// Start runs the queue drain loop until Close or ctx ends.
func (g *Gateway) Start(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		return
	}
	ctx, g.cancel = context.WithCancel(ctx)
	g.running.Add(1)
	go func() {
		defer g.running.Done()
		g.queue.Run(ctx)
	}()
	observ.Log("gateway_started", map[string]any{
		"provider":     g.provider.Name(),
		"budget_limit": g.budget.Limit(),
		"workers":      g.workers,
	})
}

// Close stops the drain loop and releases the provider.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	g.mu.Unlock()
	g.running.Wait()
	return g.provider.Close()
}

// Normalize returns the canonical form of a user-entered symbol.
func (g *Gateway) Normalize(symbol string) (string, error) {
	if strings.TrimSpace(symbol) == "" {
		return "", ErrEmptySymbol
	}
	sym, err := g.normalizer.Normalize(symbol)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSymbol, err)
	}
	return sym, nil
}

// fetch serves key from the cache or runs call through the budget,
// breaker and retry, caching a successful result for ttl.
func fetch[T any](ctx context.Context, g *Gateway, endpoint, key string, ttl time.Duration, call func(context.Context) (T, error)) (T, error) {
	var zero T
	if v, ok := g.cache.Get(key); ok {
		return v.(T), nil
	}

	br := g.breakers.Get(endpoint)
	// checked before Acquire so an open breaker burns no budget
	if !br.Allow() {
		return zero, ErrBreakerOpen
	}
	if err := g.queue.Acquire(ctx); err != nil {
		return zero, err
	}

	var out T
	start := time.Now()
	err := br.Call(ctx, func(ctx context.Context) error {
		return g.retry.Do(ctx, func(ctx context.Context) error {
			cctx, cancel := context.WithTimeout(ctx, g.upstreamTimeout)
			defer cancel()
			v, err := call(cctx)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	labels := map[string]string{"endpoint": endpoint, "provider": g.provider.Name()}
	observ.RecordDuration("upstream_request", time.Since(start), labels)
	if err != nil {
		labels["reason"] = fallbackReason(err)
		observ.IncCounter("upstream_errors_total", labels)
		return zero, err
	}

	g.cache.Set(key, out, ttl)
	return out, nil
}

// fallback logs why real data was not served. It returns the caller's
// context error when that is the reason, which must not be masked.
func (g *Gateway) fallback(ctx context.Context, endpoint, subject string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	reason := fallbackReason(err)
	observ.IncCounter("fallback_activations_total", map[string]string{"endpoint": endpoint, "reason": reason})
	observ.Warn("fallback_synthesized", map[string]any{
		"endpoint": endpoint,
		"subject":  subject,
		"reason":   reason,
		"error":    err.Error(),
	})
	return nil
}

// GetQuote returns the latest quote for symbol, synthesized when the
// upstream cannot provide one.
func (g *Gateway) GetQuote(ctx context.Context, symbol string) (*adapters.Quote, error) {
	sym, err := g.Normalize(symbol)
	if err != nil {
		return nil, err
	}
	key := "quote:" + sym

	q, err := fetch(ctx, g, EndpointQuotes, key, g.ttl.quote, func(ctx context.Context) (*adapters.Quote, error) {
		return g.provider.FetchQuote(ctx, sym)
	})
	if err == nil {
		cp := *q
		return &cp, nil
	}
	if cerr := g.fallback(ctx, EndpointQuotes, sym, err); cerr != nil {
		return nil, cerr
	}

	synth := g.synth.Quote(sym)
	g.cache.Set(key, &synth, g.ttl.fallback)
	cp := synth
	return &cp, nil
}

// GetHistory returns the candle series for symbol over rangeName.
func (g *Gateway) GetHistory(ctx context.Context, symbol, rangeName string) (*adapters.CandleSeries, error) {
	rp, err := LookupRange(rangeName)
	if err != nil {
		return nil, err
	}
	sym, err := g.Normalize(symbol)
	if err != nil {
		return nil, err
	}
	key := "history:" + sym + ":" + rp.Name

	series, err := fetch(ctx, g, EndpointHistory, key, g.ttl.history, func(ctx context.Context) (*adapters.CandleSeries, error) {
		candles, err := g.provider.FetchSeries(ctx, sym, rp.ProviderInterval, rp.Points)
		if err != nil {
			return nil, err
		}
		if len(candles) == 0 {
			return nil, adapters.NewMalformedError(g.provider.Name(), sym, "empty series", nil)
		}
		return &adapters.CandleSeries{
			Symbol:   sym,
			Range:    rp.Name,
			Interval: rp.Label,
			Candles:  candles,
			Source:   g.provider.Name(),
		}, nil
	})
	if err == nil {
		return copySeries(series), nil
	}
	if cerr := g.fallback(ctx, EndpointHistory, sym+":"+rp.Name, err); cerr != nil {
		return nil, cerr
	}

	synth := g.synth.Series(sym, rp)
	g.cache.Set(key, &synth, g.ttl.fallback)
	return copySeries(&synth), nil
}

func copySeries(s *adapters.CandleSeries) *adapters.CandleSeries {
	cp := *s
	cp.Candles = make([]adapters.Candle, len(s.Candles))
	copy(cp.Candles, s.Candles)
	return &cp
}

// SearchSymbols looks up symbols matching query.
func (g *Gateway) SearchSymbols(ctx context.Context, query string) ([]adapters.SymbolMatch, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	key := "search:" + strings.ToLower(q)

	matches, err := fetch(ctx, g, EndpointSearch, key, g.ttl.search, func(ctx context.Context) ([]adapters.SymbolMatch, error) {
		return g.provider.SearchSymbols(ctx, q)
	})
	if err == nil {
		return append([]adapters.SymbolMatch(nil), matches...), nil
	}
	if cerr := g.fallback(ctx, EndpointSearch, q, err); cerr != nil {
		return nil, cerr
	}

	synth := g.synth.SearchSymbols(q)
	g.cache.Set(key, synth, g.ttl.fallback)
	return append([]adapters.SymbolMatch(nil), synth...), nil
}

// GetMultipleQuotes fetches quotes for symbols on the worker pool. The
// result is keyed by normalized symbol; duplicates are fetched once.
func (g *Gateway) GetMultipleQuotes(ctx context.Context, symbols []string) (map[string]*adapters.Quote, error) {
	unique := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, raw := range symbols {
		sym, err := g.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("symbol %q: %w", raw, err)
		}
		if !seen[sym] {
			seen[sym] = true
			unique = append(unique, sym)
		}
	}

	workers := g.workers
	if workers > len(unique) {
		workers = len(unique)
	}

	jobs := make(chan string)
	var (
		mu       sync.Mutex
		results  = make(map[string]*adapters.Quote, len(unique))
		firstErr error
		wg       sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				q, err := g.GetQuote(ctx, sym)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
				} else {
					results[sym] = q
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, sym := range unique {
		select {
		case jobs <- sym:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// ClearCache drops every cached entry, real and synthetic.
func (g *Gateway) ClearCache() {
	n := g.cache.Len()
	g.cache.Clear()
	observ.Log("cache_cleared", map[string]any{"entries": n})
}
