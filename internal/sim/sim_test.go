package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/experiment"
	"main/internal/schema"
)

type capturePublisher struct {
	mu     sync.Mutex
	topics []string
	ticks  []schema.Tick
}

func (p *capturePublisher) Broadcast(topic string, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if tick, ok := payload.(schema.Tick); ok {
		p.ticks = append(p.ticks, tick)
	}
}

func (p *capturePublisher) tickCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

func TestBrokerAccounting(t *testing.T) {
	broker := NewBroker(decimal.NewFromInt(10000))

	broker.RecordFill(decimal.NewFromInt(50), decimal.NewFromInt(1))
	broker.RecordFill(decimal.NewFromInt(-20), decimal.NewFromInt(1))
	broker.RecordFill(decimal.Zero, decimal.NewFromInt(1))

	summary := broker.Summary()
	assert.True(t, summary.Equity.Equal(decimal.NewFromInt(10027)), "equity: %s", summary.Equity)
	assert.Equal(t, int64(3), summary.Stats.Trades)
	assert.Equal(t, int64(1), summary.Stats.Wins)
	assert.Equal(t, int64(1), summary.Stats.Losses)
	assert.True(t, summary.Stats.Fees.Equal(decimal.NewFromInt(3)))

	broker.Reset()
	summary = broker.Summary()
	assert.True(t, summary.Equity.Equal(decimal.NewFromInt(10000)))
	assert.Zero(t, summary.Stats.Trades)
}

func TestStrategyDisabledByDefault(t *testing.T) {
	broker := NewBroker(decimal.NewFromInt(10000))
	strategy := NewStrategy(broker, nil)

	for i := 0; i < 100; i++ {
		strategy.OnTick(schema.Tick{Symbol: "BTCUSDT", Mid: 50000 + float64(i)})
	}
	assert.Zero(t, broker.Summary().Stats.Trades)
}

func TestStrategyTradesWhenEnabled(t *testing.T) {
	broker := NewBroker(decimal.NewFromInt(10000))
	strategy := NewStrategy(broker, nil)
	strategy.SetParams(experiment.Params{Enabled: boolPtr(true)})

	for i := 0; i < 100; i++ {
		strategy.OnTick(schema.Tick{Symbol: "BTCUSDT", Mid: 50000 + float64(i)})
	}
	assert.Greater(t, broker.Summary().Stats.Trades, int64(0))
}

func TestStrategyParamsMerge(t *testing.T) {
	strategy := NewStrategy(NewBroker(decimal.NewFromInt(10000)), nil)
	strategy.SetParams(experiment.Params{Enabled: boolPtr(true), OrderSizeUSD: floatPtr(50)})
	strategy.SetParams(experiment.Params{OrderSizeUSD: floatPtr(200)})

	params := strategy.Params()
	require.NotNil(t, params.Enabled)
	assert.True(t, *params.Enabled)
	assert.Equal(t, 200.0, *params.OrderSizeUSD)
}

func TestFeedIngestPublishesTick(t *testing.T) {
	pub := &capturePublisher{}
	feed := NewFeed(pub, 0)

	feed.IngestMid("BTCUSDT", 50000, 1, 2)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.ticks, 1)
	assert.Equal(t, schema.TopicTick, pub.topics[0])
	assert.Equal(t, "BTCUSDT", pub.ticks[0].Symbol)
	assert.Equal(t, 50000.0, pub.ticks[0].Mid)
	assert.Equal(t, int64(1), pub.ticks[0].ExchangeTs)
}

func TestFeedLiveModeGenerates(t *testing.T) {
	pub := &capturePublisher{}
	feed := NewFeed(pub, time.Millisecond)
	feed.SetSymbols([]string{"BTCUSDT", "ETHUSDT"})

	require.NoError(t, feed.Start(true))
	defer feed.Stop()

	require.Eventually(t, func() bool { return pub.tickCount() >= 5 }, time.Second, 5*time.Millisecond)
}

func TestFeedOnlyModeStaysSilent(t *testing.T) {
	pub := &capturePublisher{}
	feed := NewFeed(pub, time.Millisecond)
	feed.SetSymbols([]string{"BTCUSDT"})

	require.NoError(t, feed.Start(false))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, pub.tickCount())
}

func TestUniverseTopPerps(t *testing.T) {
	universe := DefaultUniverse()

	symbols, err := universe.TopPerps(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}, symbols)

	all, err := universe.TopPerps(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, len(universe.Symbols))

	empty := &Universe{}
	_, err = empty.TopPerps(context.Background(), 1, 0)
	assert.Error(t, err)
}

func boolPtr(v bool) *bool { return &v }

func floatPtr(v float64) *float64 { return &v }
