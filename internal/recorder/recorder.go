package recorder

import (
	"bufio"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	errs "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/time/rate"

	"main/internal/schema"
)

var (
	ErrReplayFileNotFound = errors.New("recorder: replay file not found")
	ErrReplayEmpty        = errors.New("recorder: replay file has no usable events")
)

// Feed is the market-data source a replay drives. During replay the live
// transport is stopped and events are pushed straight into the pipeline.
type Feed interface {
	SetSymbols(symbols []string)
	Start(liveSubscribe bool) error
	Stop()
	IngestMid(symbol string, mid float64, exchangeTs, receivedTs int64)
}

// Publisher receives recorder status updates.
type Publisher interface {
	Broadcast(topic string, payload any)
}

const (
	defaultStatusInterval = time.Second
	defaultReplayTick     = 20 * time.Millisecond
	defaultMinSpeed       = 0.01
)

// Config controls capture and replay behavior.
type Config struct {
	// AllowedTopics is the capture allow-list. Defaults to the tick topic.
	AllowedTopics []string
	// StatusInterval is the minimum gap between unforced status publishes.
	StatusInterval time.Duration
	// ReplayTick is the wall-clock scheduler granularity.
	ReplayTick time.Duration
	// MinSpeed is the lower clamp for the replay speed multiplier.
	MinSpeed float64
}

func (c Config) withDefaults() Config {
	if len(c.AllowedTopics) == 0 {
		c.AllowedTopics = []string{schema.TopicTick}
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = defaultStatusInterval
	}
	if c.ReplayTick <= 0 {
		c.ReplayTick = defaultReplayTick
	}
	if c.MinSpeed <= 0 {
		c.MinSpeed = defaultMinSpeed
	}
	return c
}

// Status is a point-in-time view of the recorder.
type Status struct {
	Recording  bool   `json:"recording"`
	Replaying  bool   `json:"replaying"`
	RecordFile string `json:"recordFile,omitempty"`
	ReplayFile string `json:"replayFile,omitempty"`
	Replayed   int    `json:"replayed"`
	Total      int    `json:"total"`
	Done       bool   `json:"done"`
}

// Recorder captures allow-listed bus events into a JSON-lines file and
// replays captured tick streams back into the feed at a configurable speed.
// It implements bus.Tap. Recording and replay are mutually exclusive.
type Recorder struct {
	cfg     Config
	feed    Feed
	pub     Publisher
	limiter *rate.Limiter
	allowed map[string]struct{}

	// startMu serializes StartRecording/StartReplay callers; mu alone
	// cannot span their file and feed side effects.
	startMu sync.Mutex

	mu         sync.Mutex
	recording  bool
	recordFile string
	out        *os.File
	buf        *bufio.Writer

	replaying  bool
	replayFile string
	replayed   int
	total      int
	done       bool
	stopReplay chan struct{}
	replayWG   sync.WaitGroup
}

// New builds a recorder. pub may be nil to disable status publication.
func New(cfg Config, feed Feed, pub Publisher) *Recorder {
	cfg = cfg.withDefaults()
	allowed := make(map[string]struct{}, len(cfg.AllowedTopics))
	for _, topic := range cfg.AllowedTopics {
		allowed[topic] = struct{}{}
	}
	return &Recorder{
		cfg:     cfg,
		feed:    feed,
		pub:     pub,
		limiter: rate.NewLimiter(rate.Every(cfg.StatusInterval), 1),
		allowed: allowed,
	}
}

// Capture observes one broadcast. Called synchronously by the bus; write
// failures are swallowed, capture is best-effort telemetry.
func (r *Recorder) Capture(topic string, payload any, at time.Time) {
	if _, ok := r.allowed[topic]; !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording || r.buf == nil {
		return
	}

	line, err := sonic.Marshal(schema.Record{
		Ts:      at.UnixMilli(),
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		logs.Debugf("recorder skip unmarshalable payload, topic: %s, err: %+v", topic, err)
		return
	}
	if _, err := r.buf.Write(append(line, '\n')); err != nil {
		logs.Debugf("recorder append failed, err: %+v", err)
	}
}

// StartRecording opens fileName (truncating) and begins capturing. Returns
// true without side effects when a recording is already active. A running
// replay is stopped first.
func (r *Recorder) StartRecording(fileName string) (already bool, err error) {
	r.startMu.Lock()
	defer r.startMu.Unlock()

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return true, nil
	}
	r.mu.Unlock()

	r.haltReplay()

	out, err := os.Create(fileName)
	if err != nil {
		return false, errs.Wrapf(err, "create recording file %s", fileName)
	}

	r.mu.Lock()
	r.recording = true
	r.recordFile = fileName
	r.out = out
	r.buf = bufio.NewWriter(out)
	r.mu.Unlock()

	logs.Infof("recording started, file: %s", fileName)
	r.publish(true)
	return false, nil
}

// StopRecording flushes and closes the active recording. Safe when idle.
func (r *Recorder) StopRecording() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	if r.buf != nil {
		_ = r.buf.Flush()
	}
	if r.out != nil {
		_ = r.out.Close()
	}
	file := r.recordFile
	r.recording = false
	r.recordFile = ""
	r.out = nil
	r.buf = nil
	r.mu.Unlock()

	logs.Infof("recording stopped, file: %s", file)
	r.publish(true)
}

// Status returns a snapshot of the recorder state.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() Status {
	return Status{
		Recording:  r.recording,
		Replaying:  r.replaying,
		RecordFile: r.recordFile,
		ReplayFile: r.replayFile,
		Replayed:   r.replayed,
		Total:      r.total,
		Done:       r.done,
	}
}

// publish emits the current status. Unforced publishes are rate limited;
// state transitions pass forced=true. Must not be called with mu held.
func (r *Recorder) publish(forced bool) {
	if r.pub == nil {
		return
	}
	if !forced && !r.limiter.Allow() {
		return
	}
	r.pub.Broadcast(schema.TopicRecorderStatus, r.Status())
}
