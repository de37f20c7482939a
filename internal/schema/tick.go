package schema

// Tick is the payload published on TopicTick.
type Tick struct {
	Symbol     string  `json:"symbol"`
	Mid        float64 `json:"mid"`
	ExchangeTs int64   `json:"exchangeTs,omitempty"`
	ReceivedTs int64   `json:"receivedTs,omitempty"`
}

// Record is one captured bus event, one JSON object per log line.
type Record struct {
	Ts      int64  `json:"ts"`
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}
