package experiment

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"main/internal/schema"
)

// Config controls orchestrator pacing and persistence.
type Config struct {
	// PollInterval is how often the phase wait checks the stop flag.
	PollInterval time.Duration
	// StatusInterval is the minimum gap between unforced status publishes.
	StatusInterval time.Duration
	// RunLogDir is where per-run log files land when StartOptions does not
	// name one explicitly.
	RunLogDir string
	// SymbolCount and MinMarketCap are the universe defaults.
	SymbolCount  int
	MinMarketCap float64
}

const (
	defaultPollInterval   = time.Second
	defaultStatusInterval = time.Second
	defaultSymbolCount    = 10
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.RunLogDir == "" {
		c.RunLogDir = "."
	}
	if c.SymbolCount <= 0 {
		c.SymbolCount = defaultSymbolCount
	}
	return c
}

// StartOptions parameterizes one run.
type StartOptions struct {
	// DurationHours is the total run length. Phases = floor(DurationHours),
	// minimum one; each phase gets an equal share of the total.
	DurationHours float64
	// Presets overrides the built-in rotation when non-empty.
	Presets []Preset
	// SymbolCount/MinMarketCap override the configured universe defaults
	// when positive.
	SymbolCount  int
	MinMarketCap float64
	// RunLogPath overrides the derived per-run log file location.
	RunLogPath string
	// PhaseDuration overrides the derived phase length while keeping the
	// phase count from DurationHours. For dry runs.
	PhaseDuration time.Duration
}

// Orchestrator rotates strategy presets over fixed-duration phases,
// attributing broker performance to each preset via before/after snapshots.
// One run at a time; the phase loop is the sole writer of run state.
type Orchestrator struct {
	cfg      Config
	feed     Feed
	strategy Strategy
	broker   Broker
	universe Universe
	pub      Publisher
	limiter  *rate.Limiter

	// startMu serializes Start callers so only one can launch a run; mu
	// alone cannot be held across the blocking universe lookup.
	startMu sync.Mutex

	mu      sync.Mutex
	run     *Run
	log     *runLog
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// New builds an orchestrator. pub may be nil to disable status publication.
func New(cfg Config, feed Feed, strategy Strategy, broker Broker, universe Universe, pub Publisher) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:      cfg,
		feed:     feed,
		strategy: strategy,
		broker:   broker,
		universe: universe,
		pub:      pub,
		limiter:  rate.NewLimiter(rate.Every(cfg.StatusInterval), 1),
	}
}

// Start resolves the universe, resets accounting, enables the strategy and
// launches the phase loop. Returns immediately with the initial run state.
// Calling Start while a run is active returns the current state unchanged.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (Run, error) {
	o.startMu.Lock()
	defer o.startMu.Unlock()

	o.mu.Lock()
	if o.run != nil && o.run.Running {
		current := o.snapshotLocked()
		o.mu.Unlock()
		return current, nil
	}
	o.mu.Unlock()

	count := opts.SymbolCount
	if count <= 0 {
		count = o.cfg.SymbolCount
	}
	minCap := opts.MinMarketCap
	if minCap <= 0 {
		minCap = o.cfg.MinMarketCap
	}

	symbols, err := o.universe.TopPerps(ctx, count, minCap)
	if err != nil {
		return Run{}, errors.Wrap(err, "resolve trading universe")
	}

	o.feed.SetSymbols(symbols)
	o.broker.Reset()
	o.strategy.SetParams(Params{Enabled: ptrOf(true)})

	presets := opts.Presets
	if len(presets) == 0 {
		presets = BuiltinPresets()
	}

	phases := int(math.Floor(opts.DurationHours))
	if phases < 1 {
		phases = 1
	}
	total := time.Duration(opts.DurationHours * float64(time.Hour))
	if total < 0 {
		total = 0
	}
	phaseDuration := total / time.Duration(phases)
	if opts.PhaseDuration > 0 {
		phaseDuration = opts.PhaseDuration
	}

	now := time.Now()
	run := &Run{
		RunID:     uuid.NewString(),
		Running:   true,
		StartedAt: now,
		EndsAt:    now.Add(total),
		Presets:   presets,
		Symbols:   symbols,
	}

	logPath := opts.RunLogPath
	if logPath == "" {
		logPath = filepath.Join(o.cfg.RunLogDir, "run-"+run.RunID+".log")
	}
	log := openRunLog(logPath)

	presetNames := make([]string, 0, len(presets))
	for _, p := range presets {
		presetNames = append(presetNames, p.Name)
	}
	log.write("start", map[string]any{
		"runId":         run.RunID,
		"symbols":       symbols,
		"presets":       presetNames,
		"durationHours": opts.DurationHours,
		"phases":        phases,
	})

	o.mu.Lock()
	o.run = run
	o.log = log
	o.stopped.Store(false)
	initial := o.snapshotLocked()
	o.mu.Unlock()

	logs.Infof("experiment run %s started, phases: %d, symbols: %d", run.RunID, phases, len(symbols))
	o.publish(true)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(phases, phaseDuration)
	}()

	return initial, nil
}

// Stop requests run termination. The loop observes the flag at its next
// poll boundary; results keep only fully-completed phases. No-op when idle.
func (o *Orchestrator) Stop(reason string) {
	o.mu.Lock()
	active := o.run != nil && o.run.Running
	var snapshot Run
	if active {
		o.run.Note = "Stopping: " + reason
		snapshot = o.snapshotLocked()
	}
	o.mu.Unlock()
	if !active {
		return
	}
	o.stopped.Store(true)
	logs.Infof("experiment stop requested: %s", reason)
	if o.pub != nil {
		o.pub.Broadcast(schema.TopicRunStatus, snapshot)
	}
}

// Status returns the latest run state and whether a run exists.
func (o *Orchestrator) Status() (Run, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.run == nil {
		return Run{}, false
	}
	return o.snapshotLocked(), true
}

// Wait blocks until the phase loop exits. Intended for shutdown paths.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) loop(phases int, phaseDuration time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			logs.Errorf("experiment phase loop failed: %+v", rec)
			o.mu.Lock()
			o.run.Note = fmt.Sprintf("ERROR: %v", rec)
			o.run.Running = false
			o.log.close()
			o.mu.Unlock()
			o.publish(true)
		}
	}()

	o.mu.Lock()
	run := o.run
	log := o.log
	o.mu.Unlock()

	for i := 0; i < phases && !o.stopped.Load(); i++ {
		preset := run.Presets[i%len(run.Presets)]
		o.strategy.SetParams(preset.Params)
		before := o.broker.Summary()

		o.mu.Lock()
		run.PhaseIndex = i
		o.mu.Unlock()

		log.write("preset_start", map[string]any{
			"runId":  run.RunID,
			"phase":  i,
			"preset": preset.Name,
		})
		o.publish(true)

		if !o.waitPhase(phaseDuration) {
			break
		}

		after := o.broker.Summary()
		result := PhaseResult{
			PhaseIndex: i,
			Preset:     preset.Name,
			Before:     before,
			After:      after,
			Delta:      deltaOf(before, after),
			EndedAt:    time.Now(),
		}

		o.mu.Lock()
		run.Results = append(run.Results, result)
		o.mu.Unlock()

		log.write("preset_end", map[string]any{
			"runId":  run.RunID,
			"phase":  i,
			"preset": preset.Name,
			"pnl":    result.Delta.Pnl.String(),
			"trades": result.Delta.Trades,
		})
		o.publish(true)
	}

	o.finish(run, log)
}

// waitPhase sleeps the phase out in poll increments, reporting rate-limited
// status and honoring the stop flag. Returns false when stopped early.
func (o *Orchestrator) waitPhase(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if o.stopped.Load() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := o.cfg.PollInterval
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
		o.publish(false)
	}
}

func (o *Orchestrator) finish(run *Run, log *runLog) {
	summary := o.broker.Summary()

	note := "Completed"
	if o.stopped.Load() {
		note = "Stopped"
	}

	o.mu.Lock()
	final := &Final{
		RunID:    run.RunID,
		TotalPnl: summary.Equity.Sub(summary.StartingBalance),
	}
	for _, result := range run.Results {
		final.Trades += result.Delta.Trades
		final.Wins += result.Delta.Wins
		final.Losses += result.Delta.Losses
		final.Fees = final.Fees.Add(result.Delta.Fees)
	}
	run.Final = final
	run.Note = note
	run.Running = false
	o.mu.Unlock()

	log.write("finish", map[string]any{
		"runId":    run.RunID,
		"note":     note,
		"totalPnl": final.TotalPnl.String(),
		"phases":   len(run.Results),
	})
	log.close()

	logs.Infof("experiment run %s finished: %s, totalPnl: %s", run.RunID, note, final.TotalPnl.String())
	o.publish(true)
}

// publish emits the run state on the status topic. Broadcast never blocks
// and publication failures are not the loop's problem.
func (o *Orchestrator) publish(forced bool) {
	if o.pub == nil {
		return
	}
	if !forced && !o.limiter.Allow() {
		return
	}
	o.mu.Lock()
	snapshot := o.snapshotLocked()
	o.mu.Unlock()
	o.pub.Broadcast(schema.TopicRunStatus, snapshot)
}

func (o *Orchestrator) snapshotLocked() Run {
	if o.run == nil {
		return Run{}
	}
	snapshot := *o.run
	snapshot.Results = append([]PhaseResult(nil), o.run.Results...)
	snapshot.Symbols = append([]string(nil), o.run.Symbols...)
	return snapshot
}
