package recorder

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	errs "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

type replayEvent struct {
	ts   int64
	tick schema.Tick
}

// StartReplay loads a recording and schedules its tick events back into the
// feed at speed times real time. Any active recording or replay is stopped
// first. The live feed transport is restarted in feed-only mode so replayed
// ticks are the sole market-data source.
func (r *Recorder) StartReplay(fileName string, speed float64) error {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.StopRecording()
	r.haltReplay()

	if speed < r.cfg.MinSpeed {
		speed = r.cfg.MinSpeed
	}

	events, err := loadEvents(fileName)
	if err != nil {
		return err
	}

	if r.feed != nil {
		r.feed.Stop()
		if err := r.feed.Start(false); err != nil {
			return errs.Wrap(err, "restart feed for replay")
		}
	}

	stop := make(chan struct{})
	r.mu.Lock()
	r.replaying = true
	r.replayFile = fileName
	r.replayed = 0
	r.total = len(events)
	r.done = false
	r.stopReplay = stop
	r.mu.Unlock()

	r.replayWG.Add(1)
	go func() {
		defer r.replayWG.Done()
		r.runReplay(stop, events, speed)
	}()

	logs.Infof("replay started, file: %s, events: %d, speed: %.2f", fileName, len(events), speed)
	r.publish(true)
	return nil
}

// StopReplay halts a running replay and reports how many events were
// delivered out of the total. Safe when idle.
func (r *Recorder) StopReplay() (delivered, total int) {
	r.haltReplay()
	r.mu.Lock()
	delivered, total = r.replayed, r.total
	r.mu.Unlock()
	r.publish(true)
	return delivered, total
}

// haltReplay cancels the scheduler goroutine and waits for it to exit.
func (r *Recorder) haltReplay() {
	r.mu.Lock()
	if !r.replaying {
		r.mu.Unlock()
		return
	}
	r.replaying = false
	stop := r.stopReplay
	r.stopReplay = nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	r.replayWG.Wait()
}

// runReplay injects events in timestamp order, pacing them on a coarse
// wall-clock tick. Elapsed recording time is wall time scaled by speed, so
// bursts in the recording stay bursts in the replay.
func (r *Recorder) runReplay(stop <-chan struct{}, events []replayEvent, speed float64) {
	base := events[0].ts
	start := time.Now()

	ticker := time.NewTicker(r.cfg.ReplayTick)
	defer ticker.Stop()

	idx := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		elapsed := float64(time.Since(start).Milliseconds()) * speed
		for idx < len(events) && float64(events[idx].ts-base) <= elapsed {
			ev := events[idx]
			r.feed.IngestMid(ev.tick.Symbol, ev.tick.Mid, ev.tick.ExchangeTs, ev.tick.ReceivedTs)
			idx++
		}

		r.mu.Lock()
		r.replayed = idx
		finished := idx == len(events)
		if finished {
			r.replaying = false
			r.done = true
			r.stopReplay = nil
		}
		r.mu.Unlock()

		if finished {
			logs.Infof("replay complete, events: %d", len(events))
			r.publish(true)
			return
		}
		r.publish(false)
	}
}

// loadEvents parses a recording file, keeping only well-formed tick events
// with a finite positive mid, sorted ascending by capture timestamp.
func loadEvents(fileName string) ([]replayEvent, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrReplayFileNotFound
		}
		return nil, errs.Wrapf(err, "read replay file %s", fileName)
	}

	var events []replayEvent
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec struct {
			Ts      int64           `json:"ts"`
			Topic   string          `json:"topic"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := sonic.UnmarshalString(line, &rec); err != nil {
			continue
		}
		if rec.Topic != schema.TopicTick || rec.Ts <= 0 {
			continue
		}

		var tick schema.Tick
		if err := sonic.Unmarshal(rec.Payload, &tick); err != nil {
			continue
		}
		if tick.Symbol == "" || tick.Mid <= 0 || math.IsNaN(tick.Mid) || math.IsInf(tick.Mid, 0) {
			continue
		}
		events = append(events, replayEvent{ts: rec.Ts, tick: tick})
	}

	if len(events) == 0 {
		return nil, ErrReplayEmpty
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ts < events[j].ts })
	return events, nil
}
