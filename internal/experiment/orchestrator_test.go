package experiment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

type fakeFeed struct {
	mu      sync.Mutex
	symbols []string
}

func (f *fakeFeed) SetSymbols(symbols []string) {
	f.mu.Lock()
	f.symbols = append([]string(nil), symbols...)
	f.mu.Unlock()
}

type fakeStrategy struct {
	mu      sync.Mutex
	applied []Params
}

func (s *fakeStrategy) SetParams(partial Params) {
	s.mu.Lock()
	s.applied = append(s.applied, partial)
	s.mu.Unlock()
}

func (s *fakeStrategy) calls() []Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Params(nil), s.applied...)
}

// fakeBroker advances its accounting deterministically on every Summary
// call: +10 equity, +2 trades, +1 win, +1 loss, +0.5 fees.
type fakeBroker struct {
	mu     sync.Mutex
	resets int
	calls  int64
}

func (b *fakeBroker) Reset() {
	b.mu.Lock()
	b.resets++
	b.calls = 0
	b.mu.Unlock()
}

func (b *fakeBroker) Summary() BrokerSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	n := b.calls
	return BrokerSummary{
		Equity:          decimal.NewFromInt(10000 + 10*n),
		StartingBalance: decimal.NewFromInt(10000),
		Stats: BrokerStats{
			Trades: 2 * n,
			Wins:   n,
			Losses: n,
			Fees:   decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(n)),
		},
	}
}

type fakeUniverse struct {
	symbols []string
	err     error
}

func (u *fakeUniverse) TopPerps(_ context.Context, count int, _ float64) ([]string, error) {
	if u.err != nil {
		return nil, u.err
	}
	if count > len(u.symbols) {
		count = len(u.symbols)
	}
	return u.symbols[:count], nil
}

type fakePublisher struct {
	mu   sync.Mutex
	runs []Run
}

func (p *fakePublisher) Broadcast(topic string, payload any) {
	if topic != schema.TopicRunStatus {
		return
	}
	run, ok := payload.(Run)
	if !ok {
		return
	}
	p.mu.Lock()
	p.runs = append(p.runs, run)
	p.mu.Unlock()
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.runs)
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeFeed, *fakeStrategy, *fakeBroker, *fakePublisher, string) {
	t.Helper()
	feed := &fakeFeed{}
	strategy := &fakeStrategy{}
	broker := &fakeBroker{}
	universe := &fakeUniverse{symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}}
	pub := &fakePublisher{}
	dir := t.TempDir()

	orch := New(Config{
		PollInterval:   time.Millisecond,
		StatusInterval: time.Millisecond,
		RunLogDir:      dir,
		SymbolCount:    2,
	}, feed, strategy, broker, universe, pub)
	return orch, feed, strategy, broker, pub, dir
}

func TestTwoPhaseRunCompletes(t *testing.T) {
	orch, feed, strategy, broker, pub, dir := newTestOrchestrator(t)
	logPath := filepath.Join(dir, "run.log")

	initial, err := orch.Start(context.Background(), StartOptions{
		DurationHours: 2,
		PhaseDuration: 10 * time.Millisecond,
		RunLogPath:    logPath,
	})
	require.NoError(t, err)
	assert.True(t, initial.Running)
	assert.NotEmpty(t, initial.RunID)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, initial.Symbols)

	orch.Wait()

	run, ok := orch.Status()
	require.True(t, ok)
	assert.False(t, run.Running)
	assert.Equal(t, "Completed", run.Note)
	require.Len(t, run.Results, 2)

	// Built-in rotation: phase 0 and 1 apply presets [0] and [1] in order.
	builtins := BuiltinPresets()
	assert.Equal(t, builtins[0].Name, run.Results[0].Preset)
	assert.Equal(t, builtins[1].Name, run.Results[1].Preset)

	for _, result := range run.Results {
		assert.True(t, result.Delta.Pnl.Equal(result.After.Equity.Sub(result.Before.Equity)),
			"pnl delta should be after minus before")
		assert.Equal(t, result.After.Stats.Trades-result.Before.Stats.Trades, result.Delta.Trades)
		assert.Equal(t, result.After.Stats.Wins-result.Before.Stats.Wins, result.Delta.Wins)
	}

	require.NotNil(t, run.Final)
	assert.Equal(t, run.RunID, run.Final.RunID)
	assert.Equal(t, run.Results[0].Delta.Trades+run.Results[1].Delta.Trades, run.Final.Trades)

	// Strategy saw enablement plus one preset per phase.
	applied := strategy.calls()
	require.GreaterOrEqual(t, len(applied), 3)
	require.NotNil(t, applied[0].Enabled)
	assert.True(t, *applied[0].Enabled)

	broker.mu.Lock()
	resets := broker.resets
	broker.mu.Unlock()
	assert.Equal(t, 1, resets)

	feed.mu.Lock()
	symbols := feed.symbols
	feed.mu.Unlock()
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)

	assert.Greater(t, pub.count(), 0)
}

func TestRunLogRecords(t *testing.T) {
	orch, _, _, _, _, dir := newTestOrchestrator(t)
	logPath := filepath.Join(dir, "run.log")

	_, err := orch.Start(context.Background(), StartOptions{
		DurationHours: 2,
		PhaseDuration: 5 * time.Millisecond,
		RunLogPath:    logPath,
	})
	require.NoError(t, err)
	orch.Wait()

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 6)

	var types []string
	for _, line := range lines {
		var record struct {
			Type string `json:"type"`
			At   string `json:"at"`
		}
		require.NoError(t, sonic.UnmarshalString(line, &record))
		types = append(types, record.Type)

		_, err := time.Parse(time.RFC3339, record.At)
		require.NoError(t, err, "at should be RFC3339: %s", record.At)
	}
	assert.Equal(t, []string{"start", "preset_start", "preset_end", "preset_start", "preset_end", "finish"}, types)
}

func TestStopMidPhase(t *testing.T) {
	orch, _, _, _, pub, dir := newTestOrchestrator(t)

	_, err := orch.Start(context.Background(), StartOptions{
		DurationHours: 1,
		PhaseDuration: 10 * time.Second,
		RunLogPath:    filepath.Join(dir, "run.log"),
	})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	orch.Stop("operator request")
	orch.Wait()

	run, ok := orch.Status()
	require.True(t, ok)
	assert.False(t, run.Running)
	assert.Equal(t, "Stopped", run.Note)
	assert.Empty(t, run.Results, "a phase cut short must not contribute a result")

	// The status forced out by Stop carries the caller's reason.
	var sawReason bool
	pub.mu.Lock()
	for _, published := range pub.runs {
		if published.Note == "Stopping: operator request" {
			sawReason = true
		}
	}
	pub.mu.Unlock()
	assert.True(t, sawReason, "stop status should name the reason")
}

func TestStartConcurrentLaunchesOneRun(t *testing.T) {
	orch, _, _, broker, _, dir := newTestOrchestrator(t)
	opts := StartOptions{
		DurationHours: 1,
		PhaseDuration: 10 * time.Second,
		RunLogPath:    filepath.Join(dir, "run.log"),
	}

	const starters = 4
	runs := make(chan Run, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := orch.Start(context.Background(), opts)
			assert.NoError(t, err)
			runs <- run
		}()
	}
	wg.Wait()
	close(runs)

	first := <-runs
	require.NotEmpty(t, first.RunID)
	for run := range runs {
		assert.Equal(t, first.RunID, run.RunID, "every starter should observe the same run")
	}

	broker.mu.Lock()
	resets := broker.resets
	broker.mu.Unlock()
	assert.Equal(t, 1, resets, "only one starter may reset the broker")

	orch.Stop("cleanup")
	orch.Wait()
}

func TestStartWhileRunningReturnsCurrent(t *testing.T) {
	orch, _, _, _, _, dir := newTestOrchestrator(t)

	first, err := orch.Start(context.Background(), StartOptions{
		DurationHours: 1,
		PhaseDuration: 10 * time.Second,
		RunLogPath:    filepath.Join(dir, "run.log"),
	})
	require.NoError(t, err)

	second, err := orch.Start(context.Background(), StartOptions{DurationHours: 5})
	require.NoError(t, err)
	assert.Equal(t, first.RunID, second.RunID)
	assert.True(t, second.Running)

	orch.Stop("cleanup")
	orch.Wait()
}

func TestStartUniverseFailure(t *testing.T) {
	feed := &fakeFeed{}
	broker := &fakeBroker{}
	orch := New(Config{}, feed, &fakeStrategy{}, broker, &fakeUniverse{err: errors.New("screener down")}, nil)

	_, err := orch.Start(context.Background(), StartOptions{DurationHours: 1})
	require.Error(t, err)

	_, ok := orch.Status()
	assert.False(t, ok)
	broker.mu.Lock()
	defer broker.mu.Unlock()
	assert.Zero(t, broker.resets, "broker must not be reset when the universe cannot be resolved")
}

func TestStopWhenIdleIsNoOp(t *testing.T) {
	orch, _, _, _, pub, _ := newTestOrchestrator(t)
	orch.Stop("nothing running")
	assert.Zero(t, pub.count())
}

func TestPresetWrapAround(t *testing.T) {
	orch, _, strategy, _, _, dir := newTestOrchestrator(t)

	presets := []Preset{
		{Name: "only-a", Params: Params{Leverage: ptrOf(1.0)}},
		{Name: "only-b", Params: Params{Leverage: ptrOf(2.0)}},
	}
	_, err := orch.Start(context.Background(), StartOptions{
		DurationHours: 3,
		PhaseDuration: 5 * time.Millisecond,
		Presets:       presets,
		RunLogPath:    filepath.Join(dir, "run.log"),
	})
	require.NoError(t, err)
	orch.Wait()

	run, ok := orch.Status()
	require.True(t, ok)
	require.Len(t, run.Results, 3)
	assert.Equal(t, "only-a", run.Results[0].Preset)
	assert.Equal(t, "only-b", run.Results[1].Preset)
	assert.Equal(t, "only-a", run.Results[2].Preset)

	applied := strategy.calls()
	// Enablement plus three phase applications.
	require.Len(t, applied, 4)
	assert.Equal(t, 1.0, *applied[1].Leverage)
	assert.Equal(t, 2.0, *applied[2].Leverage)
	assert.Equal(t, 1.0, *applied[3].Leverage)
}
