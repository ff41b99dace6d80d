package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
	"github.com/Rajchodisetti/marketgate/internal/gateway"
	"github.com/Rajchodisetti/marketgate/internal/httpapi"
	"github.com/Rajchodisetti/marketgate/internal/indicators"
	"github.com/Rajchodisetti/marketgate/internal/observ"
)

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func source(synthetic bool, name string) string {
	if synthetic {
		return "synthetic"
	}
	return name
}

// serve

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP and websocket market-data server" }
func (*serveCmd) Usage() string {
	return `marketgate [-config file] serve [-addr :8080]

  Serves quotes, history, search and indicators over HTTP, admin cache
  endpoints, /metrics, /health and the /ws/quotes broadcast.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Listen address. Overrides server.addr from the configuration.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, cfg, err := openGateway(ctx, false)
	if err != nil {
		return fail(err)
	}
	defer gw.Close()

	addr := cfg.Server.Addr
	if c.addr != "" {
		addr = c.addr
	}

	hub := httpapi.NewHub(gw, httpapi.HubConfig{
		Interval:       cfg.Server.BroadcastInterval(),
		DefaultSymbols: cfg.Server.DefaultSymbols,
	})
	go hub.Run(ctx)

	observ.Log("marketgate_starting", map[string]any{
		"addr":     addr,
		"provider": cfg.Upstream.Provider,
		"budget":   cfg.Budget.Limit,
	})
	if err := httpapi.NewServer(gw, hub).ListenAndServe(ctx, addr); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// quote

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "print the latest quote for one or more symbols" }
func (*quoteCmd) Usage() string {
	return `marketgate quote SYMBOL [SYMBOL...]
`
}
func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	gw, _, err := openGateway(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer gw.Close()

	quotes, err := gw.GetMultipleQuotes(ctx, f.Args())
	if err != nil {
		return fail(err)
	}
	symbols := make([]string, 0, len(quotes))
	for s := range quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tPRICE\tCHANGE\tOPEN\tHIGH\tLOW\tVOLUME\tSOURCE")
	for _, s := range symbols {
		q := quotes[s]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			q.Symbol,
			formatPrice(q.Price, ""),
			formatChange(q.Change, q.PercentChange, ""),
			formatPrice(q.Open, ""),
			formatPrice(q.High, ""),
			formatPrice(q.Low, ""),
			q.Volume,
			source(q.IsSynthetic, q.Source),
		)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// history

type historyCmd struct {
	rangeName string
	last      int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the candle series for a symbol" }
func (*historyCmd) Usage() string {
	return `marketgate history [-range 1D|5D|1M|3M|6M|1Y|5Y] [-n rows] SYMBOL
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.rangeName, "range", "1M", "History range ("+strings.Join(gateway.Ranges(), ", ")+").")
	f.IntVar(&c.last, "n", 0, "Only print the last n candles (0 prints all).")
}

func (c *historyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	gw, cfg, err := openGateway(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer gw.Close()

	series, err := gw.GetHistory(ctx, f.Arg(0), c.rangeName)
	if err != nil {
		return fail(err)
	}
	loc, err := time.LoadLocation(cfg.Synth.Timezone)
	if err != nil {
		loc = time.Local
	}

	candles := series.Candles
	if c.last > 0 && len(candles) > c.last {
		candles = candles[len(candles)-c.last:]
	}

	fmt.Printf("%s %s (%s, %d candles, %s)\n", series.Symbol, series.Range, series.Interval,
		len(series.Candles), source(series.IsSynthetic, series.Source))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
	for _, cd := range candles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			cd.Timestamp.In(loc).Format("2006-01-02 15:04"),
			formatPrice(cd.Open, ""),
			formatPrice(cd.High, ""),
			formatPrice(cd.Low, ""),
			formatPrice(cd.Close, ""),
			cd.Volume,
		)
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// search

type searchCmd struct{}

func (*searchCmd) Name() string     { return "search" }
func (*searchCmd) Synopsis() string { return "search symbols by ticker or company name" }
func (*searchCmd) Usage() string {
	return `marketgate search TERM...
`
}
func (*searchCmd) SetFlags(*flag.FlagSet) {}

func (*searchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	gw, _, err := openGateway(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer gw.Close()

	matches, err := gw.SearchSymbols(ctx, strings.Join(f.Args(), " "))
	if err != nil {
		return fail(err)
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return subcommands.ExitSuccess
	}
	printMatches(matches)
	return subcommands.ExitSuccess
}

func printMatches(matches []adapters.SymbolMatch) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tEXCHANGE\tTYPE\tSOURCE")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Symbol, m.Name, m.Exchange, m.Type, m.Source)
	}
	_ = w.Flush()
}

// indicators

type indicatorsCmd struct {
	rangeName string
}

func (*indicatorsCmd) Name() string     { return "indicators" }
func (*indicatorsCmd) Synopsis() string { return "print RSI, MACD, Bollinger bands and volatility for a symbol" }
func (*indicatorsCmd) Usage() string {
	return `marketgate indicators [-range 6M] SYMBOL
`
}

func (c *indicatorsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.rangeName, "range", "6M", "History range the indicators are computed over.")
}

func (c *indicatorsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	gw, _, err := openGateway(ctx, true)
	if err != nil {
		return fail(err)
	}
	defer gw.Close()

	series, err := gw.GetHistory(ctx, f.Arg(0), c.rangeName)
	if err != nil {
		return fail(err)
	}
	s := indicators.Summarize(series)

	fmt.Printf("%s %s (%d points, %s)\n", s.Symbol, s.Range, s.Points, source(s.IsSynthetic, series.Source))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	rows := []struct {
		name string
		v    *float64
	}{
		{"last", s.Last},
		{"sma(20)", s.SMA20},
		{"ema(20)", s.EMA20},
		{"rsi(14)", s.RSI14},
		{"macd(12,26)", s.MACD},
		{"macd signal(9)", s.MACDSignal},
		{"macd histogram", s.MACDHist},
		{"bollinger upper", s.BollUpper},
		{"bollinger middle", s.BollMiddle},
		{"bollinger lower", s.BollLower},
		{"atr(14)", s.ATR14},
		{"annualized volatility", s.Volatility},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\n", r.name, formatIndicator(r.v))
	}
	if err := w.Flush(); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}
