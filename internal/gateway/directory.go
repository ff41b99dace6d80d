package gateway

import (
	"strings"

	"github.com/Rajchodisetti/marketgate/internal/adapters"
)

type listing struct {
	symbol, name, exchange, kind string
}

// directory is what symbol search falls back to when the upstream is unavailable.
var directory = []listing{
	{"AAPL", "Apple Inc", "NASDAQ", "Common Stock"},
	{"MSFT", "Microsoft Corporation", "NASDAQ", "Common Stock"},
	{"GOOGL", "Alphabet Inc Class A", "NASDAQ", "Common Stock"},
	{"GOOG", "Alphabet Inc Class C", "NASDAQ", "Common Stock"},
	{"AMZN", "Amazon.com Inc", "NASDAQ", "Common Stock"},
	{"META", "Meta Platforms Inc", "NASDAQ", "Common Stock"},
	{"NVDA", "NVIDIA Corporation", "NASDAQ", "Common Stock"},
	{"TSLA", "Tesla Inc", "NASDAQ", "Common Stock"},
	{"NFLX", "Netflix Inc", "NASDAQ", "Common Stock"},
	{"AMD", "Advanced Micro Devices Inc", "NASDAQ", "Common Stock"},
	{"INTC", "Intel Corporation", "NASDAQ", "Common Stock"},
	{"ADBE", "Adobe Inc", "NASDAQ", "Common Stock"},
	{"CRM", "Salesforce Inc", "NYSE", "Common Stock"},
	{"ORCL", "Oracle Corporation", "NYSE", "Common Stock"},
	{"IBM", "International Business Machines Corp", "NYSE", "Common Stock"},
	{"JPM", "JPMorgan Chase & Co", "NYSE", "Common Stock"},
	{"BAC", "Bank of America Corp", "NYSE", "Common Stock"},
	{"V", "Visa Inc", "NYSE", "Common Stock"},
	{"MA", "Mastercard Inc", "NYSE", "Common Stock"},
	{"BRK.B", "Berkshire Hathaway Inc Class B", "NYSE", "Common Stock"},
	{"JNJ", "Johnson & Johnson", "NYSE", "Common Stock"},
	{"UNH", "UnitedHealth Group Inc", "NYSE", "Common Stock"},
	{"PG", "Procter & Gamble Co", "NYSE", "Common Stock"},
	{"KO", "Coca-Cola Co", "NYSE", "Common Stock"},
	{"PEP", "PepsiCo Inc", "NASDAQ", "Common Stock"},
	{"WMT", "Walmart Inc", "NYSE", "Common Stock"},
	{"HD", "Home Depot Inc", "NYSE", "Common Stock"},
	{"DIS", "Walt Disney Co", "NYSE", "Common Stock"},
	{"XOM", "Exxon Mobil Corp", "NYSE", "Common Stock"},
	{"CVX", "Chevron Corp", "NYSE", "Common Stock"},
	{"SPY", "SPDR S&P 500 ETF Trust", "NYSE ARCA", "ETF"},
	{"QQQ", "Invesco QQQ Trust", "NASDAQ", "ETF"},
	{"DIA", "SPDR Dow Jones Industrial Average ETF", "NYSE ARCA", "ETF"},
	{"IWM", "iShares Russell 2000 ETF", "NYSE ARCA", "ETF"},
	{"VTI", "Vanguard Total Stock Market ETF", "NYSE ARCA", "ETF"},
}

// searchDirectory returns symbol-prefix matches first, then name matches.
func searchDirectory(query string, limit int) []adapters.SymbolMatch {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var bySymbol, byName []adapters.SymbolMatch
	for _, l := range directory {
		m := adapters.SymbolMatch{
			Symbol:   l.symbol,
			Name:     l.name,
			Exchange: l.exchange,
			Type:     l.kind,
			Currency: "USD",
			Source:   sourceSynthetic,
		}
		switch {
		case strings.HasPrefix(l.symbol, q):
			bySymbol = append(bySymbol, m)
		case strings.Contains(strings.ToUpper(l.name), q):
			byName = append(byName, m)
		}
	}

	out := append(bySymbol, byName...)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []adapters.SymbolMatch{}
	}
	return out
}
