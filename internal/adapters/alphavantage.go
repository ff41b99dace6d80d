package adapters

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const alphaVantageDefaultURL = "https://www.alphavantage.co"

// AlphaVantageAdapter implements Provider for the Alpha Vantage API
type AlphaVantageAdapter struct {
	apiKey  string
	fetcher *httpFetcher
	loc     *time.Location
}

// AlphaVantageConfig holds configuration for Alpha Vantage adapter
type AlphaVantageConfig struct {
	APIKey             string
	BaseURL            string
	RateLimitPerMinute int
	TimeoutSeconds     int
}

// NewAlphaVantageAdapter creates a new Alpha Vantage adapter
func NewAlphaVantageAdapter(config AlphaVantageConfig) (*AlphaVantageAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Alpha Vantage API key is required")
	}

	// Set defaults
	if config.BaseURL == "" {
		config.BaseURL = alphaVantageDefaultURL
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 5 // Free tier limit
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}

	return &AlphaVantageAdapter{
		apiKey:  config.APIKey,
		fetcher: newHTTPFetcher("alphavantage", config.BaseURL, time.Duration(config.TimeoutSeconds)*time.Second, config.RateLimitPerMinute),
		loc:     marketLocation(),
	}, nil
}

func (av *AlphaVantageAdapter) Name() string { return "alphavantage" }

// Close performs cleanup
func (av *AlphaVantageAdapter) Close() error {
	// No persistent connections to close for HTTP client
	return nil
}

// query runs one /query call and returns the decoded body after checking
// Alpha Vantage's in-band error fields.
func (av *AlphaVantageAdapter) query(ctx context.Context, symbol string, params url.Values) (map[string]any, error) {
	params.Set("apikey", av.apiKey)
	body, err := av.fetcher.get(ctx, symbol, "/query", params)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, NewMalformedError(av.Name(), symbol, "failed to parse response", err)
	}

	// Check for API errors
	if msg, ok := doc["Error Message"].(string); ok && msg != "" {
		return nil, NewBadRequestError(av.Name(), symbol, 200, msg)
	}
	for _, key := range []string{"Note", "Information"} {
		if msg, ok := doc[key].(string); ok && msg != "" {
			// Usually rate limit or API call frequency message
			return nil, NewRejectedError(av.Name(), symbol, 200, msg)
		}
	}
	return doc, nil
}

// FetchQuote calls GLOBAL_QUOTE.
func (av *AlphaVantageAdapter) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	doc, err := av.query(ctx, symbol, url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
	})
	if err != nil {
		return nil, err
	}

	raw, err := jsonpath.Get(`$["Global Quote"]`, doc)
	if err != nil {
		return nil, NewMalformedError(av.Name(), symbol, "missing Global Quote", err)
	}
	fields, ok := raw.(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, NewBadRequestError(av.Name(), symbol, 200, "no quote data returned")
	}

	// Alpha Vantage uses numbered keys with string values
	num := func(key string) (float64, error) {
		s, _ := fields[key].(string)
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("field %q: %w", key, err)
		}
		return d.InexactFloat64(), nil
	}

	var q Quote
	var parseErr error
	for key, dst := range map[string]*float64{
		"02. open":           &q.Open,
		"03. high":           &q.High,
		"04. low":            &q.Low,
		"05. price":          &q.Price,
		"08. previous close": &q.PreviousClose,
		"09. change":         &q.Change,
		"10. change percent": &q.PercentChange,
	} {
		v, err := num(key)
		if err != nil && parseErr == nil {
			parseErr = err
		}
		*dst = v
	}
	if parseErr != nil {
		return nil, NewMalformedError(av.Name(), symbol, "bad numeric field", parseErr)
	}
	volume, err := num("06. volume")
	if err != nil {
		return nil, NewMalformedError(av.Name(), symbol, "bad volume", err)
	}

	q.Symbol = symbol
	q.Volume = int64(volume)
	q.Source = av.Name()
	q.Timestamp = av.tradingDayStamp(fields["07. latest trading day"], time.Now())
	if err := ValidateQuote(&q); err != nil {
		return nil, NewMalformedError(av.Name(), symbol, "invalid quote", err)
	}
	return &q, nil
}

// tradingDayStamp places the date-only latest trading day at its 16:00
// close, or at now while that session is still running. A missing or
// unparseable day falls back to now.
func (av *AlphaVantageAdapter) tradingDayStamp(v any, now time.Time) time.Time {
	s, _ := v.(string)
	day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), av.loc)
	if err != nil {
		return now
	}
	closeAt := time.Date(day.Year(), day.Month(), day.Day(), 16, 0, 0, 0, av.loc)
	if closeAt.After(now) {
		return now
	}
	return closeAt
}

// seriesFunction maps a provider interval to the Alpha Vantage function.
func seriesFunction(interval string) (function string, intraday bool, err error) {
	switch interval {
	case "1min", "5min", "15min", "30min", "60min":
		return "TIME_SERIES_INTRADAY", true, nil
	case "1day":
		return "TIME_SERIES_DAILY", false, nil
	case "1week":
		return "TIME_SERIES_WEEKLY", false, nil
	case "1month":
		return "TIME_SERIES_MONTHLY", false, nil
	}
	return "", false, fmt.Errorf("unsupported interval %q", interval)
}

// FetchSeries calls the TIME_SERIES_* function matching interval.
func (av *AlphaVantageAdapter) FetchSeries(ctx context.Context, symbol, interval string, points int) ([]Candle, error) {
	function, intraday, err := seriesFunction(interval)
	if err != nil {
		return nil, NewBadRequestError(av.Name(), symbol, 0, err.Error())
	}
	params := url.Values{
		"function": {function},
		"symbol":   {symbol},
	}
	if intraday {
		params.Set("interval", interval)
	}
	if points > 100 {
		params.Set("outputsize", "full")
	}

	doc, err := av.query(ctx, symbol, params)
	if err != nil {
		return nil, err
	}

	// The series key varies: "Time Series (5min)", "Time Series (Daily)", "Weekly Time Series", ...
	var bars map[string]any
	for key, v := range doc {
		if strings.Contains(key, "Time Series") {
			bars, _ = v.(map[string]any)
			break
		}
	}
	if len(bars) == 0 {
		return nil, NewMalformedError(av.Name(), symbol, "no time series in response", nil)
	}

	candles := make([]Candle, 0, len(bars))
	for stamp, raw := range bars {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, NewMalformedError(av.Name(), symbol, "bar is not an object: "+stamp, nil)
		}
		c, err := av.parseBar(stamp, fields)
		if err != nil {
			return nil, NewMalformedError(av.Name(), symbol, "bad bar "+stamp, err)
		}
		candles = append(candles, c)
	}

	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	if points > 0 && len(candles) > points {
		candles = candles[len(candles)-points:]
	}
	if err := ValidateCandles(candles); err != nil {
		return nil, NewMalformedError(av.Name(), symbol, "invalid series", err)
	}
	return candles, nil
}

func (av *AlphaVantageAdapter) parseBar(stamp string, fields map[string]any) (Candle, error) {
	var c Candle
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", stamp, av.loc)
	if err != nil {
		ts, err = time.ParseInLocation("2006-01-02", stamp, av.loc)
		if err != nil {
			return c, err
		}
	}
	c.Timestamp = ts

	for key, dst := range map[string]*float64{
		"1. open":  &c.Open,
		"2. high":  &c.High,
		"3. low":   &c.Low,
		"4. close": &c.Close,
	} {
		s, _ := fields[key].(string)
		d, err := decimal.NewFromString(s)
		if err != nil {
			return c, fmt.Errorf("field %q: %w", key, err)
		}
		*dst = d.InexactFloat64()
	}
	if s, ok := fields["5. volume"].(string); ok {
		if d, err := decimal.NewFromString(s); err == nil {
			c.Volume = d.IntPart()
		}
	}
	return c, nil
}

// SearchSymbols calls SYMBOL_SEARCH.
func (av *AlphaVantageAdapter) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	doc, err := av.query(ctx, query, url.Values{
		"function": {"SYMBOL_SEARCH"},
		"keywords": {query},
	})
	if err != nil {
		return nil, err
	}

	raw, err := jsonpath.Get(`$.bestMatches[*]`, doc)
	if err != nil {
		return nil, NewMalformedError(av.Name(), query, "missing bestMatches", err)
	}
	items, _ := raw.([]any)

	matches := make([]SymbolMatch, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		str := func(k string) string { s, _ := m[k].(string); return s }
		matches = append(matches, SymbolMatch{
			Symbol:   str("1. symbol"),
			Name:     str("2. name"),
			Type:     str("3. type"),
			Exchange: str("4. region"),
			Currency: str("8. currency"),
			Source:   av.Name(),
		})
	}
	return matches, nil
}
