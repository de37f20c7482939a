package experiment

import (
	"context"

	"github.com/shopspring/decimal"
)

// Feed is the market-data pipeline the orchestrator retargets at run start.
type Feed interface {
	SetSymbols(symbols []string)
}

// Strategy is the trading logic whose parameters each phase rotates.
type Strategy interface {
	// SetParams merges partial over the current configuration. Set fields
	// override, nil fields keep their prior values.
	SetParams(partial Params)
}

// Broker exposes paper-trading accounting. Summary is snapshotted before
// and after every phase to attribute performance to one preset.
type Broker interface {
	Reset()
	Summary() BrokerSummary
}

// Universe resolves the tradable symbol set.
type Universe interface {
	TopPerps(ctx context.Context, count int, minMarketCap float64) ([]string, error)
}

// Publisher receives run status updates.
type Publisher interface {
	Broadcast(topic string, payload any)
}

// BrokerStats are cumulative counters since the last broker reset.
type BrokerStats struct {
	Trades int64           `json:"trades"`
	Wins   int64           `json:"wins"`
	Losses int64           `json:"losses"`
	Fees   decimal.Decimal `json:"fees"`
}

// BrokerSummary is a point-in-time view of the broker's accounting.
type BrokerSummary struct {
	Equity          decimal.Decimal `json:"equity"`
	StartingBalance decimal.Decimal `json:"startingBalance"`
	Stats           BrokerStats     `json:"stats"`
}
