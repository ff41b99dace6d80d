package indicators

import (
	"math"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
)

// TrueRanges returns max(H-L, |H-Cp|, |L-Cp|) for every candle after the first.
func TrueRanges(candles []adapters.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		current := candles[i]
		previous := candles[i-1]

		hl := current.High - current.Low
		hcp := math.Abs(current.High - previous.Close)
		lcp := math.Abs(current.Low - previous.Close)
		out = append(out, math.Max(hl, math.Max(hcp, lcp)))
	}
	return out
}

// ATR is the average of the last period true ranges, or NaN without enough history.
func ATR(candles []adapters.Candle, period int) float64 {
	tr := TrueRanges(candles)
	if period <= 0 || len(tr) < period {
		return math.NaN()
	}
	return mean(tr[len(tr)-period:])
}

// sampleStdDev divides by n-1.
func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

// LogReturns returns ln(c[i]/c[i-1]); non-positive prices are skipped.
func LogReturns(closes []float64) []float64 {
	out := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i] <= 0 || closes[i-1] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// RealizedVolatility annualizes the sample deviation of log returns.
// periodsPerYear is 252 for daily bars, 252*78 for 5-minute bars.
func RealizedVolatility(closes []float64, periodsPerYear float64) float64 {
	returns := LogReturns(closes)
	if len(returns) < 2 {
		return math.NaN()
	}
	return sampleStdDev(returns) * math.Sqrt(periodsPerYear)
}

// PeriodsPerYear maps a series interval label to its annualization factor.
func PeriodsPerYear(interval string) float64 {
	switch interval {
	case "5m":
		return 252 * 78
	case "15m":
		return 252 * 26
	case "1w":
		return 52
	case "1mo":
		return 12
	}
	return 252
}
