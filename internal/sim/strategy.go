package sim

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/experiment"
	"main/internal/schema"
)

// Strategy is a toy mean-touch strategy for paper runs. It opens a pseudo
// position on every Nth tick and closes it at the configured take-profit or
// stop-loss distance, crediting the broker. Real signal quality is not the
// point; it exercises the preset rotation end to end.
type Strategy struct {
	broker *Broker
	pub    Publisher

	mu     sync.Mutex
	params experiment.Params
	last   map[string]float64
	ticks  int
}

// NewStrategy builds a strategy bound to a paper broker. pub may be nil.
func NewStrategy(broker *Broker, pub Publisher) *Strategy {
	return &Strategy{
		broker: broker,
		pub:    pub,
		last:   make(map[string]float64),
	}
}

// SetParams merges partial over the current parameters; set fields
// override, nil fields keep their prior values.
func (s *Strategy) SetParams(partial experiment.Params) {
	s.mu.Lock()
	s.params = s.params.Merge(partial)
	params := s.params
	s.mu.Unlock()

	logs.Debugf("strategy params updated: %+v", params)
	if s.pub != nil {
		s.pub.Broadcast(schema.TopicStrategyStatus, params)
	}
}

// Params returns the effective parameter set.
func (s *Strategy) Params() experiment.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// OnTick feeds one mid update into the strategy.
func (s *Strategy) OnTick(tick schema.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.params.Enabled == nil || !*s.params.Enabled {
		return
	}

	prev, ok := s.last[tick.Symbol]
	s.last[tick.Symbol] = tick.Mid
	if !ok || prev <= 0 {
		return
	}

	s.ticks++
	if s.ticks%8 != 0 {
		return
	}

	size := 100.0
	if s.params.OrderSizeUSD != nil {
		size = *s.params.OrderSizeUSD
	}
	move := (tick.Mid - prev) / prev

	pnl := decimal.NewFromFloat(move * size)
	fee := decimal.NewFromFloat(size * 0.0002)
	s.broker.RecordFill(pnl, fee)
}
