package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Conn is the transport endpoint a subscriber lives behind. The bus only
// tracks topic sets for the handle's lifetime; it never owns the connection.
type Conn interface {
	// Send queues one outbound message. Must not block on network I/O.
	Send(payload []byte) error
	// Buffered reports the bytes currently queued on the outbound side.
	Buffered() int
	// IsOpen reports whether the endpoint can still accept messages.
	IsOpen() bool
}

// Tap observes every broadcast synchronously, before fan-out.
type Tap interface {
	Capture(topic string, payload any, at time.Time)
}

// Stats is a point-in-time view of bus counters.
type Stats struct {
	Sent        uint64
	Dropped     uint64
	Connections int
}

// Config controls bus behavior.
type Config struct {
	// MaxBufferedBytes is the per-connection outbound threshold above which
	// a broadcast is dropped for that connection.
	MaxBufferedBytes int
}

const defaultMaxBufferedBytes = 1 << 20

func (c Config) withDefaults() Config {
	if c.MaxBufferedBytes <= 0 {
		c.MaxBufferedBytes = defaultMaxBufferedBytes
	}
	return c
}

// Bus fans broadcasts out to subscribed connections.
//
// Delivery is synchronous from the caller's perspective and bounded per
// call: slow consumers lose messages instead of slowing producers.
type Bus struct {
	cfg Config

	mu     sync.RWMutex
	topics map[Conn]map[string]struct{}
	// taps is copy-on-write: Broadcast iterates a snapshot of the slice
	// header outside the lock, so mutations must never touch a published
	// backing array.
	taps []Tap

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New creates an empty bus.
func New(cfg Config) *Bus {
	return &Bus{
		cfg:    cfg.withDefaults(),
		topics: make(map[Conn]map[string]struct{}),
	}
}

// Register begins tracking conn with an empty topic set. Idempotent.
func (b *Bus) Register(conn Conn) {
	if b == nil || conn == nil {
		return
	}
	b.mu.Lock()
	if _, ok := b.topics[conn]; !ok {
		b.topics[conn] = make(map[string]struct{})
	}
	b.mu.Unlock()
}

// Unregister drops conn and its topic set. Safe to call from a
// connection-close callback and for unknown connections.
func (b *Bus) Unregister(conn Conn) {
	if b == nil || conn == nil {
		return
	}
	b.mu.Lock()
	delete(b.topics, conn)
	b.mu.Unlock()
}

// Subscribe adds one topic to conn's set. No-op when conn is unregistered
// or topic is empty.
func (b *Bus) Subscribe(conn Conn, topic string) {
	if b == nil || conn == nil || topic == "" {
		return
	}
	b.mu.Lock()
	if set, ok := b.topics[conn]; ok {
		set[topic] = struct{}{}
	}
	b.mu.Unlock()
}

// Unsubscribe removes one topic from conn's set. No-op when absent.
func (b *Bus) Unsubscribe(conn Conn, topic string) {
	if b == nil || conn == nil || topic == "" {
		return
	}
	b.mu.Lock()
	if set, ok := b.topics[conn]; ok {
		delete(set, topic)
	}
	b.mu.Unlock()
}

// Attach registers a tap observing every broadcast.
func (b *Bus) Attach(tap Tap) {
	if b == nil || tap == nil {
		return
	}
	b.mu.Lock()
	taps := make([]Tap, 0, len(b.taps)+1)
	taps = append(taps, b.taps...)
	b.taps = append(taps, tap)
	b.mu.Unlock()
}

// Detach removes a previously attached tap.
func (b *Bus) Detach(tap Tap) {
	if b == nil || tap == nil {
		return
	}
	b.mu.Lock()
	taps := make([]Tap, 0, len(b.taps))
	for _, t := range b.taps {
		if t != tap {
			taps = append(taps, t)
		}
	}
	b.taps = taps
	b.mu.Unlock()
}

// Broadcast delivers payload to every open connection subscribed to topic.
// The envelope is marshaled once; a connection whose outbound buffer
// exceeds the configured threshold is skipped and counted as a drop.
func (b *Bus) Broadcast(topic string, payload any) {
	if b == nil || topic == "" {
		return
	}
	now := time.Now()

	b.mu.RLock()
	taps := b.taps
	var targets []Conn
	for conn, set := range b.topics {
		if _, ok := set[topic]; ok {
			targets = append(targets, conn)
		}
	}
	b.mu.RUnlock()

	for _, tap := range taps {
		tap.Capture(topic, payload, now)
	}

	if len(targets) == 0 {
		return
	}

	data, err := sonic.Marshal(schema.Envelope{
		Kind:    schema.EnvelopeKindEvent,
		Topic:   topic,
		Payload: payload,
	})
	if err != nil {
		logs.Errorf("marshal broadcast envelope, topic: %s, err: %+v", topic, err)
		return
	}

	for _, conn := range targets {
		if !conn.IsOpen() {
			continue
		}
		if conn.Buffered() > b.cfg.MaxBufferedBytes {
			b.dropped.Add(1)
			continue
		}
		if err := conn.Send(data); err != nil {
			b.dropped.Add(1)
			continue
		}
		b.sent.Add(1)
	}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	if b == nil {
		return Stats{}
	}
	b.mu.RLock()
	connections := len(b.topics)
	b.mu.RUnlock()
	return Stats{
		Sent:        b.sent.Load(),
		Dropped:     b.dropped.Load(),
		Connections: connections,
	}
}
