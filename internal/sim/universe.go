package sim

import (
	"context"
	"fmt"
)

// Universe serves a fixed symbol list, largest first. Stands in for a
// market-cap screener when no external data source is configured.
type Universe struct {
	Symbols []string
}

// DefaultUniverse lists liquid perp symbols for simulated runs.
func DefaultUniverse() *Universe {
	return &Universe{Symbols: []string{
		"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT",
		"DOGEUSDT", "ADAUSDT", "AVAXUSDT", "LINKUSDT", "DOTUSDT",
	}}
}

// TopPerps returns the first count symbols. minMarketCap is accepted for
// interface compatibility and ignored.
func (u *Universe) TopPerps(_ context.Context, count int, _ float64) ([]string, error) {
	if len(u.Symbols) == 0 {
		return nil, fmt.Errorf("universe has no symbols")
	}
	if count <= 0 || count > len(u.Symbols) {
		count = len(u.Symbols)
	}
	return append([]string(nil), u.Symbols[:count]...), nil
}
