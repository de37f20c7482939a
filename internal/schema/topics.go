package schema

// Topic names carried by the in-process event bus.
const (
	// TopicTick carries normalized mid-price updates from the market feed.
	TopicTick = "market.tick"
	// TopicRecorderStatus carries recorder/replay progress updates.
	TopicRecorderStatus = "recorder.status"
	// TopicRunStatus carries the full experiment run object.
	TopicRunStatus = "experiment.run"
	// TopicStrategyStatus carries strategy state changes.
	TopicStrategyStatus = "strategy.status"
)

// Envelope is the wire shape of every bus broadcast.
type Envelope struct {
	Kind    string `json:"kind"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// EnvelopeKindEvent is the only kind emitted by Broadcast.
const EnvelopeKindEvent = "event"
