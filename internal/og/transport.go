package og

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is one established connection to the venue.
type Transport interface {
	// ReadMessage blocks until the next inbound message or transport error.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one outbound message. Safe for concurrent use.
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes transports. Swapped for a fake in tests.
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

const defaultWriteWait = 10 * time.Second

// WebsocketDialer dials the venue's order-entry websocket endpoint.
type WebsocketDialer struct {
	URL string
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, d.URL, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return &wsTransport{conn: conn}, nil
}

type wsTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
