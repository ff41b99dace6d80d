// Package indicators computes technical indicators over closing prices.
// Every function returns a slice aligned with its input; positions inside
// the warm-up window hold NaN.
package indicators

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev is the Bollinger convention (divide by n, not n-1).
func populationStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	variance := 0.0
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(len(values)))
}

// SMA is the simple moving average over period values.
func SMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average with smoothing 2/(period+1),
// seeded with the SMA of the first period values. Leading NaNs in values
// are skipped, so EMA can be chained onto another indicator.
func EMA(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	start := 0
	for start < len(values) && math.IsNaN(values[start]) {
		start++
	}
	if len(values)-start < period {
		return out
	}

	k := 2.0 / float64(period+1)
	seedAt := start + period - 1
	prev := mean(values[start : seedAt+1])
	out[seedAt] = prev
	for i := seedAt + 1; i < len(values); i++ {
		prev = values[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

// RSI is the relative strength index using the simple average gain and
// loss of the last period price changes. It is 100 when there was no loss.
func RSI(closes []float64, period int) []float64 {
	out := nanSlice(len(closes))
	if period <= 0 || len(closes) <= period {
		return out
	}
	for i := period; i < len(closes); i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		if avgLoss == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain / avgLoss
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

// MACDResult holds the three MACD lines.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD is EMA(fast) - EMA(slow) with a signal EMA of that difference.
func MACD(closes []float64, fast, slow, signal int) MACDResult {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)

	line := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(fastEMA[i]) && !math.IsNaN(slowEMA[i]) {
			line[i] = fastEMA[i] - slowEMA[i]
		}
	}
	sig := EMA(line, signal)
	hist := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(line[i]) && !math.IsNaN(sig[i]) {
			hist[i] = line[i] - sig[i]
		}
	}
	return MACDResult{Line: line, Signal: sig, Histogram: hist}
}

// BollingerResult holds the band lines.
type BollingerResult struct {
	Middle []float64
	Upper  []float64
	Lower  []float64
}

// Bollinger is the period SMA bracketed by k population standard deviations.
func Bollinger(closes []float64, period int, k float64) BollingerResult {
	middle := SMA(closes, period)
	upper := nanSlice(len(closes))
	lower := nanSlice(len(closes))
	for i := range closes {
		if math.IsNaN(middle[i]) {
			continue
		}
		sd := populationStdDev(closes[i-period+1 : i+1])
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
	}
	return BollingerResult{Middle: middle, Upper: upper, Lower: lower}
}
