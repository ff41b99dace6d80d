package adapters

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Provider is an upstream market-data source. Implementations normalize their
// wire format into Quote/Candle/SymbolMatch before returning; they do not
// cache, retry or budget; the gateway wraps them with that.
type Provider interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (*Quote, error)
	// FetchSeries returns up to points candles at the provider interval
	// ("5min", "15min", "1day", "1week", "1month"), oldest first.
	FetchSeries(ctx context.Context, symbol, interval string, points int) ([]Candle, error)
	SearchSymbols(ctx context.Context, query string) ([]SymbolMatch, error)
	Close() error
}

// Quote represents normalized market data from any provider
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	PercentChange float64   `json:"percent_change"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        int64     `json:"volume"`
	PreviousClose float64   `json:"previous_close"`
	Timestamp     time.Time `json:"timestamp"`
	IsSynthetic   bool      `json:"is_synthetic"`
	Source        string    `json:"source"` // "alphavantage"|"twelvedata"|"mock"|"synthetic"
}

// Candle is one OHLC bar.
type Candle struct {
	Timestamp   time.Time `json:"timestamp"`
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      int64     `json:"volume"`
	IsSynthetic bool      `json:"is_synthetic"`
}

// CandleSeries is an ordered run of candles for one symbol and range.
type CandleSeries struct {
	Symbol      string   `json:"symbol"`
	Range       string   `json:"range"`
	Interval    string   `json:"interval"`
	Candles     []Candle `json:"candles"`
	IsSynthetic bool     `json:"is_synthetic"`
	Source      string   `json:"source"`
}

// Closes returns the close prices in order.
func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}

// SymbolMatch is one symbol-search hit.
type SymbolMatch struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange,omitempty"`
	Type     string `json:"type,omitempty"`
	Currency string `json:"currency,omitempty"`
	Source   string `json:"source"`
}

// ValidateQuote rejects payloads that parsed but cannot be a real quote.
func ValidateQuote(quote *Quote) error {
	if quote == nil {
		return fmt.Errorf("quote is nil")
	}

	quote.Symbol = strings.ToUpper(strings.TrimSpace(quote.Symbol))
	if quote.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}

	if quote.Price <= 0 {
		return fmt.Errorf("invalid quote price: %.4f", quote.Price)
	}
	if quote.High > 0 && quote.Low > 0 && quote.High < quote.Low {
		return fmt.Errorf("invalid range: high(%.4f) < low(%.4f)", quote.High, quote.Low)
	}
	if quote.Volume < 0 {
		return fmt.Errorf("negative volume: %d", quote.Volume)
	}

	// Timestamp validation (not too far in future)
	if quote.Timestamp.After(time.Now().Add(5 * time.Minute)) {
		return fmt.Errorf("quote timestamp too far in future: %v", quote.Timestamp)
	}
	return nil
}

// ValidateCandles checks ordering and OHLC consistency of a provider series.
func ValidateCandles(candles []Candle) error {
	for i, c := range candles {
		if c.Close <= 0 || c.Open <= 0 {
			return fmt.Errorf("candle %d: non-positive price", i)
		}
		if c.High < c.Low {
			return fmt.Errorf("candle %d: high(%.4f) < low(%.4f)", i, c.High, c.Low)
		}
		if i > 0 && !c.Timestamp.After(candles[i-1].Timestamp) {
			return fmt.Errorf("candle %d: timestamp %v not after %v", i, c.Timestamp, candles[i-1].Timestamp)
		}
	}
	return nil
}
