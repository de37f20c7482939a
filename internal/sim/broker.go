package sim

import (
	"sync"

	"github.com/shopspring/decimal"

	"main/internal/experiment"
)

// Broker is a paper-trading ledger. Fills are recorded by the strategy;
// the orchestrator snapshots Summary around every phase.
type Broker struct {
	mu              sync.Mutex
	startingBalance decimal.Decimal
	equity          decimal.Decimal
	stats           experiment.BrokerStats
}

// NewBroker builds a paper broker seeded with startingBalance.
func NewBroker(startingBalance decimal.Decimal) *Broker {
	return &Broker{
		startingBalance: startingBalance,
		equity:          startingBalance,
	}
}

// Reset restores the starting balance and clears counters.
func (b *Broker) Reset() {
	b.mu.Lock()
	b.equity = b.startingBalance
	b.stats = experiment.BrokerStats{}
	b.mu.Unlock()
}

// Summary returns current accounting.
func (b *Broker) Summary() experiment.BrokerSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	return experiment.BrokerSummary{
		Equity:          b.equity,
		StartingBalance: b.startingBalance,
		Stats:           b.stats,
	}
}

// RecordFill applies one closed trade's pnl and fee to the ledger.
func (b *Broker) RecordFill(pnl, fee decimal.Decimal) {
	b.mu.Lock()
	b.equity = b.equity.Add(pnl).Sub(fee)
	b.stats.Trades++
	if pnl.IsPositive() {
		b.stats.Wins++
	} else if pnl.IsNegative() {
		b.stats.Losses++
	}
	b.stats.Fees = b.stats.Fees.Add(fee)
	b.mu.Unlock()
}
