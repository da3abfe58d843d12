package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/event"
)

var (
	// tuning parameters
	writeWait      = 10 * time.Second    // time allowed to write a frame to the peer
	pongWait       = 20 * time.Second    // time allowed to read the next pong from the peer
	pingInterval   = (pongWait * 9) / 10 // send pings to the peer with this period
	maxMessageSize = 64 * 1024           // max inbound frame size (64KB)
	sendBufSize    = 256                 // outbound buffer size
	eventBufSize   = 256                 // inbound event buffer size
	sendTimeout    = 2 * time.Second     // timeout for enqueuing outbound events
)

// Config configures the websocket transport.
type Config struct {
	// URL is the websocket endpoint, e.g. "ws://localhost:8081/ws".
	URL string
	// Logger is used for structured logging. If nil, zap.NewNop() is used.
	Logger *zap.Logger
	// DialTimeout bounds each handshake attempt. Defaults to 10s.
	DialTimeout time.Duration
	// BackoffBase is the first reconnect delay. Defaults to 500ms.
	BackoffBase time.Duration
	// BackoffMax caps the reconnect delay. Defaults to 30s.
	BackoffMax time.Duration
}

// WebsocketTransport is the production Transport over gorilla/websocket.
// It dials synchronously on Connect, then keeps the channel alive with
// capped-backoff redials until Disconnect. An authentication rejection
// (401/403 on the handshake) is never retried.
type WebsocketTransport struct {
	cfg Config
	log *zap.Logger

	events chan event.Event
	status chan Status
	egress chan event.Envelope

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// NewWebsocket creates a websocket transport. The transport is reusable: a
// Disconnect followed by another Connect starts a fresh session on the same
// event and status channels.
func NewWebsocket(cfg Config) *WebsocketTransport {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	return &WebsocketTransport{
		cfg:    cfg,
		log:    cfg.Logger,
		events: make(chan event.Event, eventBufSize),
		status: make(chan Status, 16),
		egress: make(chan event.Envelope, sendBufSize),
	}
}

// Connect dials the server. It returns ErrAuthFailed without retrying when
// the handshake is rejected with 401/403; any other dial error is returned
// as-is. On success a background session keeps the connection alive until
// Disconnect.
func (t *WebsocketTransport) Connect(ctx context.Context, token string) error {
	t.mu.Lock()
	if t.cancel != nil {
		t.mu.Unlock()
		return fmt.Errorf("transport: already connected")
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx, token)
	if err != nil {
		return err
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.cancel = cancel
	t.mu.Unlock()

	t.emitStatus(Status{State: StateConnected})
	go t.run(sessionCtx, token, conn)
	return nil
}

// Disconnect tears down the current session. Safe to call when already
// disconnected.
func (t *WebsocketTransport) Disconnect() {
	t.mu.Lock()
	cancel := t.cancel
	conn := t.conn
	t.cancel = nil
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
	if cancel != nil {
		t.emitStatus(Status{State: StateDisconnected})
	}
}

// Connected reports whether the channel is currently up.
func (t *WebsocketTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send enqueues an event for delivery. It fails fast while disconnected —
// the caller decides whether to fall back, fail, or drop.
func (t *WebsocketTransport) Send(ev event.Event) error {
	if !t.Connected() {
		return ErrNotConnected
	}
	env, err := event.Encode(ev)
	if err != nil {
		return err
	}

	select {
	case t.egress <- env:
		return nil
	case <-time.After(sendTimeout):
		return fmt.Errorf("transport: send buffer full")
	}
}

// Events returns the inbound event stream.
func (t *WebsocketTransport) Events() <-chan event.Event {
	return t.events
}

// Status returns the connection lifecycle stream.
func (t *WebsocketTransport) Status() <-chan Status {
	return t.status
}

func (t *WebsocketTransport) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u := t.cfg.URL
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	conn, resp, err := dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, ErrAuthFailed
		}
		return nil, fmt.Errorf("transport: dial %s: %w", t.cfg.URL, err)
	}
	conn.SetReadLimit(int64(maxMessageSize))
	return conn, nil
}

// run owns one session: it pumps the given connection until it drops, then
// redials with capped backoff. It exits on Disconnect or on an
// authentication rejection during a redial.
func (t *WebsocketTransport) run(ctx context.Context, token string, conn *websocket.Conn) {
	for {
		err := t.pump(ctx, conn)

		t.mu.Lock()
		t.connected = false
		t.conn = nil
		closed := t.cancel == nil
		t.mu.Unlock()

		if closed || ctx.Err() != nil {
			return
		}

		t.log.Warn("connection lost, reconnecting", zap.Error(err))
		t.emitStatus(Status{State: StateDisconnected, Err: err})

		conn = t.redial(ctx, token)
		if conn == nil {
			return
		}

		t.mu.Lock()
		t.conn = conn
		t.connected = true
		t.mu.Unlock()
		t.emitStatus(Status{State: StateConnected})
	}
}

// redial retries the handshake with exponential backoff until it succeeds,
// the session is cancelled, or the server rejects the token.
func (t *WebsocketTransport) redial(ctx context.Context, token string) *websocket.Conn {
	backoff := t.cfg.BackoffBase
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		t.emitStatus(Status{State: StateConnecting})
		conn, err := t.dial(ctx, token)
		if err == nil {
			return conn
		}
		if err == ErrAuthFailed {
			t.log.Error("reconnect rejected by server, giving up")
			t.emitStatus(Status{State: StateFailed, Err: ErrAuthFailed})
			return nil
		}

		t.log.Warn("reconnect attempt failed",
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		backoff *= 2
		if backoff > t.cfg.BackoffMax {
			backoff = t.cfg.BackoffMax
		}
	}
}

// pump runs the read loop inline and the write/ping loop in a goroutine.
// It returns when the connection drops or the session is cancelled.
func (t *WebsocketTransport) pump(ctx context.Context, conn *websocket.Conn) error {
	writerDone := make(chan struct{})
	go t.writeLoop(ctx, conn, writerDone)
	defer func() {
		_ = conn.Close()
		<-writerDone
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				return fmt.Errorf("transport: server closed connection: %w", err)
			}
			return err
		}

		ev, err := event.Decode(env)
		if err != nil {
			// One bad frame must not take the stream down.
			t.log.Warn("dropping undecodable event",
				zap.String("event", env.Event),
				zap.Error(err),
			)
			continue
		}

		select {
		case t.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (t *WebsocketTransport) writeLoop(ctx context.Context, conn *websocket.Conn, done chan<- struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-t.egress:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(env); err != nil {
				t.log.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// emitStatus delivers a lifecycle notification without ever blocking the
// session goroutine; if the consumer is not draining, older notifications
// are dropped.
func (t *WebsocketTransport) emitStatus(s Status) {
	for {
		select {
		case t.status <- s:
			return
		default:
			select {
			case <-t.status:
			default:
			}
		}
	}
}
