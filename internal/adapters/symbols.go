package adapters

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var validSymbol = regexp.MustCompile(`^[A-Z0-9.\-^]+$`)

// defaultAliases maps common misspellings and retired tickers to the
// symbol users actually mean.
var defaultAliases = map[string]string{
	"APPL":      "AAPL",
	"APPLE":     "AAPL",
	"AMAZON":    "AMZN",
	"GOOGLE":    "GOOGL",
	"MICROSOFT": "MSFT",
	"MSFT.O":    "MSFT",
	"NVIDA":     "NVDA",
	"NVIDIA":    "NVDA",
	"TESLA":     "TSLA",
	"TSLA.O":    "TSLA",
	"NETFLIX":   "NFLX",
	"FB":        "META",
	"BRK-B":     "BRK.B",
	"BRK-A":     "BRK.A",
}

// SymbolNormalizer cleans user-entered symbols into the canonical form used
// as cache keys and sent to providers.
type SymbolNormalizer struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewSymbolNormalizer creates a normalizer seeded with the built-in alias table.
func NewSymbolNormalizer() *SymbolNormalizer {
	aliases := make(map[string]string, len(defaultAliases))
	for k, v := range defaultAliases {
		aliases[k] = v
	}
	return &SymbolNormalizer{aliases: aliases}
}

// AddAlias maps from to to for every later Normalize call.
func (sn *SymbolNormalizer) AddAlias(from, to string) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	sn.aliases[clean(from)] = clean(to)
}

// Normalize uppercases, strips exchange prefixes, "$" cashtags and ".US"
// suffixes, then resolves aliases. Empty or malformed input is an error.
func (sn *SymbolNormalizer) Normalize(raw string) (string, error) {
	symbol := clean(raw)
	if symbol == "" {
		return "", fmt.Errorf("empty symbol")
	}

	sn.mu.RLock()
	if alias, ok := sn.aliases[symbol]; ok {
		symbol = alias
	}
	sn.mu.RUnlock()

	if !validSymbol.MatchString(symbol) || len(symbol) > 12 {
		return "", fmt.Errorf("invalid symbol %q", raw)
	}
	return symbol, nil
}

func clean(raw string) string {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	symbol = strings.TrimPrefix(symbol, "$")
	for _, prefix := range []string{"NYSE:", "NASDAQ:", "NMS:", "AMEX:"} {
		if strings.HasPrefix(symbol, prefix) {
			symbol = strings.TrimPrefix(symbol, prefix)
			break
		}
	}
	symbol = strings.TrimSuffix(symbol, ".US")
	return strings.TrimSpace(symbol)
}
