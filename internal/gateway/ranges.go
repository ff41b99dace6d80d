package gateway

import (
	"fmt"
	"strings"
	"time"
)

// RangeParams describes how a history range is sampled.
type RangeParams struct {
	Name             string
	Interval         time.Duration
	Label            string // interval as shown to clients
	ProviderInterval string // interval as requested from the provider
	Points           int
	Intraday         bool
	Sessions         int // trading sessions covered by intraday ranges
}

const day = 24 * time.Hour

var rangeOrder = []string{"1D", "5D", "1M", "3M", "6M", "1Y", "5Y"}

var rangeParams = map[string]RangeParams{
	"1D": {Name: "1D", Interval: 5 * time.Minute, Label: "5m", ProviderInterval: "5min", Points: 78, Intraday: true, Sessions: 1},
	"5D": {Name: "5D", Interval: 15 * time.Minute, Label: "15m", ProviderInterval: "15min", Points: 130, Intraday: true, Sessions: 5},
	"1M": {Name: "1M", Interval: day, Label: "1d", ProviderInterval: "1day", Points: 22},
	"3M": {Name: "3M", Interval: day, Label: "1d", ProviderInterval: "1day", Points: 66},
	"6M": {Name: "6M", Interval: day, Label: "1d", ProviderInterval: "1day", Points: 126},
	"1Y": {Name: "1Y", Interval: 7 * day, Label: "1w", ProviderInterval: "1week", Points: 52},
	"5Y": {Name: "5Y", Interval: 30 * day, Label: "1mo", ProviderInterval: "1month", Points: 60},
}

// LookupRange resolves a range name such as "1d" or "5Y".
func LookupRange(name string) (RangeParams, error) {
	rp, ok := rangeParams[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return RangeParams{}, fmt.Errorf("%w %q (want one of %s)", ErrInvalidRange, name, strings.Join(rangeOrder, ", "))
	}
	return rp, nil
}

// Ranges lists the supported range names, shortest first.
func Ranges() []string {
	out := make([]string, len(rangeOrder))
	copy(out, rangeOrder)
	return out
}
