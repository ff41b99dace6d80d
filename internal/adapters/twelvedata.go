package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

const twelveDataDefaultURL = "https://api.twelvedata.com"

// TwelveDataAdapter implements Provider for the Twelve Data REST API
type TwelveDataAdapter struct {
	apiKey   string
	fetcher  *httpFetcher
	validate *validator.Validate
	loc      *time.Location
}

// TwelveDataConfig holds configuration for the Twelve Data adapter
type TwelveDataConfig struct {
	APIKey             string
	BaseURL            string
	RateLimitPerMinute int
	TimeoutSeconds     int
}

// NewTwelveDataAdapter creates a new Twelve Data adapter
func NewTwelveDataAdapter(config TwelveDataConfig) (*TwelveDataAdapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Twelve Data API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = twelveDataDefaultURL
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 8 // Basic plan
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = 10
	}

	return &TwelveDataAdapter{
		apiKey:   config.APIKey,
		fetcher:  newHTTPFetcher("twelvedata", config.BaseURL, time.Duration(config.TimeoutSeconds)*time.Second, config.RateLimitPerMinute),
		validate: validator.New(),
		loc:      marketLocation(),
	}, nil
}

func (td *TwelveDataAdapter) Name() string { return "twelvedata" }

func (td *TwelveDataAdapter) Close() error { return nil }

// Twelve Data reports failures in-band with HTTP 200.
type tdStatus struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type tdQuote struct {
	Symbol        string          `json:"symbol" validate:"required"`
	Name          string          `json:"name"`
	Exchange      string          `json:"exchange"`
	Timestamp     int64           `json:"timestamp"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	Volume        decimal.Decimal `json:"volume"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Change        decimal.Decimal `json:"change"`
	PercentChange decimal.Decimal `json:"percent_change"`
}

type tdBar struct {
	Datetime string          `json:"datetime" validate:"required"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

type tdSeries struct {
	Values []tdBar `json:"values" validate:"required,min=1,dive"`
}

type tdSearchHit struct {
	Symbol         string `json:"symbol" validate:"required"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
	InstrumentType string `json:"instrument_type"`
	Currency       string `json:"currency"`
}

type tdSearch struct {
	Data []tdSearchHit `json:"data" validate:"dive"`
}

// call performs one GET, checks the in-band status and decodes into out.
func (td *TwelveDataAdapter) call(ctx context.Context, symbol, path string, params url.Values, out any) error {
	params.Set("apikey", td.apiKey)
	body, err := td.fetcher.get(ctx, symbol, path, params)
	if err != nil {
		return err
	}

	var st tdStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return NewMalformedError(td.Name(), symbol, "failed to parse response", err)
	}
	if st.Status == "error" {
		switch {
		case st.Code == http.StatusTooManyRequests || st.Code >= 500:
			return NewRejectedError(td.Name(), symbol, st.Code, st.Message)
		default:
			return NewBadRequestError(td.Name(), symbol, st.Code, st.Message)
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return NewMalformedError(td.Name(), symbol, "failed to decode payload", err)
	}
	if err := td.validate.Struct(out); err != nil {
		return NewMalformedError(td.Name(), symbol, "payload failed validation", err)
	}
	return nil
}

// FetchQuote calls /quote.
func (td *TwelveDataAdapter) FetchQuote(ctx context.Context, symbol string) (*Quote, error) {
	var raw tdQuote
	if err := td.call(ctx, symbol, "/quote", url.Values{"symbol": {symbol}}, &raw); err != nil {
		return nil, err
	}

	ts := time.Now()
	if raw.Timestamp > 0 {
		ts = time.Unix(raw.Timestamp, 0)
	}
	q := &Quote{
		Symbol:        raw.Symbol,
		Price:         raw.Close.InexactFloat64(),
		Change:        raw.Change.InexactFloat64(),
		PercentChange: raw.PercentChange.InexactFloat64(),
		Open:          raw.Open.InexactFloat64(),
		High:          raw.High.InexactFloat64(),
		Low:           raw.Low.InexactFloat64(),
		Volume:        raw.Volume.IntPart(),
		PreviousClose: raw.PreviousClose.InexactFloat64(),
		Timestamp:     ts,
		Source:        td.Name(),
	}
	if err := ValidateQuote(q); err != nil {
		return nil, NewMalformedError(td.Name(), symbol, "invalid quote", err)
	}
	return q, nil
}

// FetchSeries calls /time_series. Twelve Data returns newest first.
func (td *TwelveDataAdapter) FetchSeries(ctx context.Context, symbol, interval string, points int) ([]Candle, error) {
	if _, _, err := seriesFunction(interval); err != nil {
		return nil, NewBadRequestError(td.Name(), symbol, 0, err.Error())
	}
	params := url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"timezone": {td.loc.String()},
	}
	if points > 0 {
		params.Set("outputsize", strconv.Itoa(points))
	}

	var raw tdSeries
	if err := td.call(ctx, symbol, "/time_series", params, &raw); err != nil {
		return nil, err
	}

	candles := make([]Candle, len(raw.Values))
	for i, bar := range raw.Values {
		ts, err := time.ParseInLocation("2006-01-02 15:04:05", bar.Datetime, td.loc)
		if err != nil {
			ts, err = time.ParseInLocation("2006-01-02", bar.Datetime, td.loc)
			if err != nil {
				return nil, NewMalformedError(td.Name(), symbol, "bad datetime "+bar.Datetime, err)
			}
		}
		// reverse into oldest-first
		candles[len(raw.Values)-1-i] = Candle{
			Timestamp: ts,
			Open:      bar.Open.InexactFloat64(),
			High:      bar.High.InexactFloat64(),
			Low:       bar.Low.InexactFloat64(),
			Close:     bar.Close.InexactFloat64(),
			Volume:    bar.Volume.IntPart(),
		}
	}
	if err := ValidateCandles(candles); err != nil {
		return nil, NewMalformedError(td.Name(), symbol, "invalid series", err)
	}
	return candles, nil
}

// SearchSymbols calls /symbol_search.
func (td *TwelveDataAdapter) SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error) {
	var raw tdSearch
	if err := td.call(ctx, query, "/symbol_search", url.Values{"symbol": {query}}, &raw); err != nil {
		return nil, err
	}
	matches := make([]SymbolMatch, 0, len(raw.Data))
	for _, hit := range raw.Data {
		matches = append(matches, SymbolMatch{
			Symbol:   hit.Symbol,
			Name:     hit.InstrumentName,
			Exchange: hit.Exchange,
			Type:     hit.InstrumentType,
			Currency: hit.Currency,
			Source:   td.Name(),
		})
	}
	return matches, nil
}
