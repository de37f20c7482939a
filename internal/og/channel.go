package og

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// State is the connection state of the channel.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnectedUnauthed
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnectedUnauthed:
		return "CONNECTED_UNAUTHENTICATED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	default:
		return "DISCONNECTED"
	}
}

// Config controls the channel runtime.
type Config struct {
	URL       string
	APIKey    string
	APISecret string

	// Disabled turns Start into a no-op; the channel reports itself disabled.
	Disabled bool

	// PingInterval is the keep-alive cadence once authenticated.
	PingInterval time.Duration
	// AuthWindow bounds the signed expiry timestamp.
	AuthWindow time.Duration
	// RequestTimeout is the default Submit deadline.
	RequestTimeout time.Duration
	Backoff        Backoff

	// Dialer overrides the websocket dialer, for tests.
	Dialer Dialer
}

const (
	defaultPingInterval   = 20 * time.Second
	defaultAuthWindow     = 10 * time.Second
	defaultRequestTimeout = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.AuthWindow <= 0 {
		c.AuthWindow = defaultAuthWindow
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.Backoff == (Backoff{}) {
		c.Backoff = DefaultBackoff()
	}
	if c.Dialer == nil {
		c.Dialer = &WebsocketDialer{URL: c.URL}
	}
	return c
}

// SubmitOptions tunes one request.
type SubmitOptions struct {
	// Timeout bounds the whole call: readiness wait plus response wait.
	Timeout time.Duration
	// RequestID overrides the generated correlation id.
	RequestID string
}

// Channel is a managed, reconnecting session to the venue's authenticated
// order-entry endpoint. Requests are correlated by reqId; each one resolves
// exactly once with an ack, a timeout, an exchange rejection or a
// cancellation.
type Channel struct {
	cfg     Config
	pending *pendingTable

	state   atomic.Int32
	started atomic.Bool
	stopped atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	ready     chan struct{}
	transport Transport
}

// New builds a channel. Call Start to begin connecting.
func New(cfg Config) *Channel {
	return &Channel{
		cfg:     cfg.withDefaults(),
		pending: newPendingTable(),
		ready:   make(chan struct{}),
	}
}

// Disabled reports whether the channel is configured off.
func (c *Channel) Disabled() bool { return c.cfg.Disabled }

// State returns the current connection state.
func (c *Channel) State() State { return State(c.state.Load()) }

// Pending returns the number of in-flight requests.
func (c *Channel) Pending() int { return c.pending.len() }

// Start begins the connect/auth/reconnect lifecycle. Idempotent. A disabled
// channel logs and stays down.
func (c *Channel) Start() {
	if c.cfg.Disabled {
		logs.Info("order channel disabled, skipping start")
		return
	}
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
}

// Stop halts reconnects, closes the transport and rejects every pending
// request with a shutdown cancellation.
func (c *Channel) Stop() {
	if !c.started.Load() || c.cancel == nil {
		return
	}
	c.stopped.Store(true)
	c.cancel()
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport != nil {
		_ = transport.Close()
	}
	c.wg.Wait()
	c.pending.failAll(ErrShutdown)
}

// WaitReady blocks the caller until the channel is authenticated or the
// timeout elapses. Never blocks channel internals.
func (c *Channel) WaitReady(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.readyCh():
		return true
	case <-timer.C:
		return false
	}
}

// Submit sends an order.create request and waits for its correlated
// response.
func (c *Channel) Submit(ctx context.Context, params OrderParams, opts SubmitOptions) (OrderAck, error) {
	return c.do(ctx, OpOrderCreate, params, opts)
}

// Amend sends an order.amend request.
func (c *Channel) Amend(ctx context.Context, params OrderParams, opts SubmitOptions) (OrderAck, error) {
	return c.do(ctx, OpOrderAmend, params, opts)
}

// Cancel sends an order.cancel request.
func (c *Channel) Cancel(ctx context.Context, params OrderParams, opts SubmitOptions) (OrderAck, error) {
	return c.do(ctx, OpOrderCancel, params, opts)
}

func (c *Channel) do(ctx context.Context, op string, params OrderParams, opts SubmitOptions) (OrderAck, error) {
	if c.cfg.Disabled {
		return OrderAck{}, ErrChannelDisabled
	}
	if !c.started.Load() {
		return OrderAck{}, ErrNotStarted
	}
	if c.stopped.Load() {
		return OrderAck{}, ErrShutdown
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	deadline := time.Now().Add(timeout)

	reqID := opts.RequestID
	if reqID == "" {
		reqID = uuid.NewString()
	}

	// Readiness wait counts against the caller's budget: a channel stuck
	// connecting fails at the caller's deadline, not the transport's.
	if !c.WaitReady(time.Until(deadline)) {
		return OrderAck{}, &RequestTimeoutError{ReqID: reqID, Timeout: timeout}
	}

	p, err := c.pending.add(reqID, time.Until(deadline), func(won *pendingRequest) {
		won.done <- result{err: &RequestTimeoutError{ReqID: reqID, Timeout: timeout}}
	})
	if err != nil {
		return OrderAck{}, err
	}

	data, err := sonic.Marshal(newOrderRequest(reqID, op, params))
	if err != nil {
		if won := c.pending.take(reqID); won != nil {
			won.timer.Stop()
		}
		return OrderAck{}, errors.Wrap(err, "marshal order request")
	}
	if err := c.send(data); err != nil {
		if won := c.pending.take(reqID); won != nil {
			won.timer.Stop()
		}
		return OrderAck{}, errors.Wrap(ErrConnectionLost, err.Error())
	}

	select {
	case res := <-p.done:
		return res.ack, res.err
	case <-ctx.Done():
		if won := c.pending.take(reqID); won != nil {
			won.timer.Stop()
		}
		return OrderAck{}, ctx.Err()
	}
}

func (c *Channel) send(data []byte) error {
	c.mu.Lock()
	transport := c.transport
	c.mu.Unlock()
	if transport == nil {
		return ErrConnectionLost
	}
	return transport.WriteMessage(data)
}

func (c *Channel) run(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}
		c.state.Store(int32(StateConnecting))

		conn, err := c.cfg.Dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			logs.Warnf("order channel dial failed (attempt %d), err: %+v", attempt, err)
			c.sleepBackoff(ctx, attempt)
			continue
		}

		c.state.Store(int32(StateConnectedUnauthed))
		c.mu.Lock()
		c.transport = conn
		c.mu.Unlock()

		authed, err := c.session(ctx, conn)
		if authed {
			attempt = 0
		}

		c.mu.Lock()
		c.transport = nil
		if State(c.state.Load()) == StateAuthenticated {
			c.ready = make(chan struct{})
		}
		c.mu.Unlock()
		c.state.Store(int32(StateDisconnected))

		// Reject in flight immediately; never leave callers to time out
		// against a dead connection.
		cause := error(ErrConnectionLost)
		if ctx.Err() != nil {
			cause = ErrShutdown
		}
		c.pending.failAll(cause)
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		attempt++
		logs.Warnf("order channel disconnected, reconnecting (attempt %d), err: %+v", attempt, err)
		c.sleepBackoff(ctx, attempt)
	}
}

// session drives one transport connection: auth, keep-alive and response
// dispatch. Returns whether authentication succeeded at least once.
func (c *Channel) session(ctx context.Context, conn Transport) (bool, error) {
	expires := time.Now().Add(c.cfg.AuthWindow).UnixMilli()
	authData, err := sonic.Marshal(newAuthRequest(c.cfg.APIKey, c.cfg.APISecret, expires))
	if err != nil {
		return false, errors.Wrap(err, "marshal auth request")
	}
	if err := conn.WriteMessage(authData); err != nil {
		return false, errors.Wrap(err, "write auth request")
	}

	errCh := make(chan error, 1)
	msgCh := make(chan []byte, 64)
	go func() {
		for {
			data, err := conn.ReadMessage()
			if err != nil {
				errCh <- err
				return
			}
			select {
			case msgCh <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	authed := false
	for {
		select {
		case <-ctx.Done():
			return authed, ctx.Err()
		case err := <-errCh:
			return authed, err
		case <-ping.C:
			// Heartbeats only run while authenticated; failures are logged,
			// transport close is the sole disconnect trigger.
			if State(c.state.Load()) != StateAuthenticated {
				continue
			}
			if err := c.send(pingPayload); err != nil {
				logs.Warnf("order channel ping failed, err: %+v", err)
			}
		case data := <-msgCh:
			if ok := c.dispatch(data); ok {
				authed = true
			}
		}
	}
}

// dispatch handles one inbound message. Returns true when the message is a
// successful auth acknowledgment.
func (c *Channel) dispatch(data []byte) bool {
	var resp response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		logs.Debugf("order channel skipping unparseable message, err: %+v", err)
		return false
	}

	switch {
	case resp.Op == OpAuth:
		if resp.RetCode != 0 {
			// Connection stays open but unusable; re-auth happens on the
			// next reconnect.
			logs.Errorf("order channel auth rejected: %+v", &AuthError{RetCode: resp.RetCode, RetMsg: resp.RetMsg})
			return false
		}
		c.state.Store(int32(StateAuthenticated))
		c.signalReady()
		logs.Info("order channel authenticated")
		return true

	case resp.Op == OpPong || resp.Op == OpPing:
		return false

	case resp.ReqID != "":
		p := c.pending.take(resp.ReqID)
		if p == nil {
			logs.Debugf("order channel response without pending request, reqId: %s", resp.ReqID)
			return false
		}
		p.timer.Stop()
		if resp.RetCode != 0 {
			p.done <- result{err: &ExchangeError{ReqID: resp.ReqID, RetCode: resp.RetCode, RetMsg: resp.RetMsg}}
			return false
		}
		p.done <- result{ack: resp.Data}
		return false
	}
	return false
}

func (c *Channel) readyCh() <-chan struct{} {
	c.mu.Lock()
	ch := c.ready
	c.mu.Unlock()
	return ch
}

func (c *Channel) signalReady() {
	c.mu.Lock()
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
	c.mu.Unlock()
}

func (c *Channel) sleepBackoff(ctx context.Context, attempt int) {
	wait := c.cfg.Backoff.Next(attempt)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
