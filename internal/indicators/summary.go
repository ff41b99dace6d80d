package indicators

import (
	"math"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
)

// Standard parameters.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerK      = 2.0
	ATRPeriod       = 14
)

// Summary carries the latest value of each indicator for one series. A nil
// field means the series is too short for that indicator.
type Summary struct {
	Symbol      string   `json:"symbol"`
	Range       string   `json:"range"`
	Interval    string   `json:"interval"`
	Points      int      `json:"points"`
	Last        *float64 `json:"last"`
	SMA20       *float64 `json:"sma20"`
	EMA20       *float64 `json:"ema20"`
	RSI14       *float64 `json:"rsi14"`
	MACD        *float64 `json:"macd"`
	MACDSignal  *float64 `json:"macd_signal"`
	MACDHist    *float64 `json:"macd_histogram"`
	BollUpper   *float64 `json:"bollinger_upper"`
	BollMiddle  *float64 `json:"bollinger_middle"`
	BollLower   *float64 `json:"bollinger_lower"`
	ATR14       *float64 `json:"atr14"`
	Volatility  *float64 `json:"annualized_volatility"`
	IsSynthetic bool     `json:"is_synthetic"`
}

func latest(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	return value(values[len(values)-1])
}

func value(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Summarize computes every indicator over series with the standard parameters.
func Summarize(series *adapters.CandleSeries) Summary {
	closes := series.Closes()
	macd := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	boll := Bollinger(closes, BollingerPeriod, BollingerK)

	return Summary{
		Symbol:      series.Symbol,
		Range:       series.Range,
		Interval:    series.Interval,
		Points:      len(closes),
		Last:        latest(closes),
		SMA20:       latest(SMA(closes, 20)),
		EMA20:       latest(EMA(closes, 20)),
		RSI14:       latest(RSI(closes, RSIPeriod)),
		MACD:        latest(macd.Line),
		MACDSignal:  latest(macd.Signal),
		MACDHist:    latest(macd.Histogram),
		BollUpper:   latest(boll.Upper),
		BollMiddle:  latest(boll.Middle),
		BollLower:   latest(boll.Lower),
		ATR14:       value(ATR(series.Candles, ATRPeriod)),
		Volatility:  value(RealizedVolatility(closes, PeriodsPerYear(series.Interval))),
		IsSynthetic: series.IsSynthetic,
	}
}
