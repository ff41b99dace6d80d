package gateway

import (
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

const (
	seedModulus    = 1_000_000_007
	driftAmplitude = 10.0
	driftPeriodMs  = 100000.0
	jitterBound    = 5.0

	sourceSynthetic = "synthetic"
)

// Synthesizer fabricates quotes and candle series that look like market
// data. The per-symbol base price is stable; a slow sinusoidal drift shared
// by all calls plus a small per-call jitter keeps repeated values close.
type Synthesizer struct {
	loc *time.Location
	now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthesizer creates a synthesizer whose sessions run on the clock of
// timezone. An unknown timezone falls back to local time.
func NewSynthesizer(timezone string, now func() time.Time) *Synthesizer {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		observ.Warn("synth_timezone_fallback", map[string]any{"timezone": timezone, "error": err.Error()})
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	seed := uint64(time.Now().UnixNano())
	return &Synthesizer{
		loc: loc,
		now: now,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// symbolSeed is Σ code(c_i)·31^i mod 1_000_000_007.
func symbolSeed(symbol string) int64 {
	var h, pow int64 = 0, 1
	for _, r := range symbol {
		h = (h + int64(r)*pow) % seedModulus
		pow = pow * 31 % seedModulus
	}
	return h
}

// BasePrice is the stable per-symbol anchor, in [100, 300).
func BasePrice(symbol string) float64 {
	return 100 + float64(symbolSeed(symbol)%200)
}

func drift(t time.Time) float64 {
	return driftAmplitude * math.Sin(float64(t.UnixMilli())/driftPeriodMs)
}

func (s *Synthesizer) uniform(lo, hi float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + s.rng.Float64()*(hi-lo)
}

func (s *Synthesizer) volume() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return 100_000 + s.rng.Int64N(4_900_000)
}

func roundCents(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Quote synthesizes a point quote for symbol at the current time.
func (s *Synthesizer) Quote(symbol string) adapters.Quote {
	now := s.now()
	anchor := BasePrice(symbol) + drift(now)
	jitter := s.uniform(-jitterBound, jitterBound)

	price := math.Max(1, anchor+jitter)
	previousClose := price - jitter
	if previousClose <= 0 {
		previousClose = price
	}
	open := price * s.uniform(0.98, 1.02)
	change := price - previousClose

	return adapters.Quote{
		Symbol:        symbol,
		Price:         roundCents(price),
		Change:        roundCents(change),
		PercentChange: roundCents(change / previousClose * 100),
		Open:          roundCents(open),
		High:          roundCents(price * 1.05),
		Low:           roundCents(price * 0.95),
		Volume:        s.volume(),
		PreviousClose: roundCents(previousClose),
		Timestamp:     now,
		IsSynthetic:   true,
		Source:        sourceSynthetic,
	}
}

// Series synthesizes the candles for symbol over the range ending at the
// current time. Intraday series may carry one extra live-tip candle.
func (s *Synthesizer) Series(symbol string, rp RangeParams) adapters.CandleSeries {
	now := s.now().In(s.loc)
	stamps := s.timestamps(rp, now)
	base := BasePrice(symbol)

	candles := make([]adapters.Candle, 0, len(stamps)+1)
	prevClose := base
	for i, ts := range stamps {
		// amplitude widens toward the recent end
		price := base + (s.uniform(0, 1)-0.5)*20*(1+float64(i)*0.01)
		price = math.Max(1, price)
		c := s.candle(ts, prevClose, price)
		candles = append(candles, c)
		prevClose = c.Close
	}

	if rp.Intraday && len(candles) > 0 {
		candles = s.withLiveTip(candles, rp.Interval, now)
	}

	return adapters.CandleSeries{
		Symbol:      symbol,
		Range:       rp.Name,
		Interval:    rp.Label,
		Candles:     candles,
		IsSynthetic: true,
		Source:      sourceSynthetic,
	}
}

func (s *Synthesizer) candle(ts time.Time, open, close float64) adapters.Candle {
	high := math.Max(open, close) * (1 + s.uniform(0, 0.01))
	low := math.Min(open, close) * (1 - s.uniform(0, 0.01))
	return adapters.Candle{
		Timestamp:   ts,
		Open:        roundCents(open),
		High:        roundCents(high),
		Low:         roundCents(low),
		Close:       roundCents(close),
		Volume:      s.volume(),
		IsSynthetic: true,
	}
}

// withLiveTip appends a candle at now when the series has gone stale.
func (s *Synthesizer) withLiveTip(candles []adapters.Candle, interval time.Duration, now time.Time) []adapters.Candle {
	last := candles[len(candles)-1]
	if !now.After(last.Timestamp) {
		return candles
	}
	if now.Sub(last.Timestamp) <= interval && sameDay(last.Timestamp, now) {
		return candles
	}

	price := math.Max(1, last.Close*(1+s.uniform(-0.0025, 0.0025)))
	candles = append(candles, s.candle(now, last.Close, price))
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles
}

func (s *Synthesizer) timestamps(rp RangeParams, now time.Time) []time.Time {
	if rp.Sessions > 0 {
		return s.recentSessionSlots(now, rp.Interval, rp.Points, rp.Sessions)
	}

	out := make([]time.Time, rp.Points)
	for i := range out {
		out[i] = now.Add(-time.Duration(rp.Points-1-i) * rp.Interval)
	}
	return out
}

// recentSessionSlots spreads n slots over the most recent completed weekday
// sessions, n/sessions slots per session starting 09:30. A session still in
// progress is left to the live tip, so 1D is always one full calendar day.
func (s *Synthesizer) recentSessionSlots(now time.Time, interval time.Duration, n, sessions int) []time.Time {
	perDay := n / sessions
	lastSlot := time.Duration(perDay-1) * interval

	days := make([]time.Time, 0, sessions) // newest first
	for d := now.In(s.loc); len(days) < sessions; d = d.AddDate(0, 0, -1) {
		if isWeekend(d) {
			continue
		}
		if s.sessionOpen(d).Add(lastSlot).After(now) {
			continue
		}
		days = append(days, d)
	}

	out := make([]time.Time, 0, perDay*sessions)
	for j := len(days) - 1; j >= 0; j-- {
		open := s.sessionOpen(days[j])
		for k := 0; k < perDay; k++ {
			out = append(out, open.Add(time.Duration(k)*interval))
		}
	}
	return out
}

func (s *Synthesizer) sessionOpen(d time.Time) time.Time {
	d = d.In(s.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 9, 30, 0, 0, s.loc)
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// SearchSymbols answers a symbol search from the built-in directory.
func (s *Synthesizer) SearchSymbols(query string) []adapters.SymbolMatch {
	return searchDirectory(query, 10)
}
