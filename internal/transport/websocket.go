package transport

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
	"github.com/dmitrijs2005/appconnect/internal/pinning"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024

	// Rate limiting: 20 messages per second with a burst of 30.
	messagesPerSecond = 20
	burstLimit        = 30
)

// WebSocketClient is the primary transport: a websocket over TLS pinned to
// the paired device's certificate fingerprint.
type WebSocketClient struct {
	trust pinning.TrustSource
	log   logging.Logger
	hub   *stateHub

	// psk, when set, replaces the key-exchange handshake. Dev builds only.
	psk []byte

	mu         sync.Mutex
	conn       *websocket.Conn
	sessionKey []byte
	device     models.Device
	attempts   int
	cancelRun  context.CancelFunc

	writeMu sync.Mutex

	lmu      sync.Mutex
	listener Listener
}

// NewWebSocketClient builds the primary transport. psk is nil in normal
// operation; a non-nil value skips the handshake and is logged loudly.
func NewWebSocketClient(trust pinning.TrustSource, log logging.Logger, psk []byte) *WebSocketClient {
	return &WebSocketClient{
		trust: trust,
		log:   log.With("component", "transport", "channel", "websocket"),
		hub:   newStateHub(),
		psk:   append([]byte(nil), psk...),
	}
}

// SetListener installs the inbound frame callback.
func (c *WebSocketClient) SetListener(l Listener) {
	c.lmu.Lock()
	c.listener = l
	c.lmu.Unlock()
}

func (c *WebSocketClient) deliver(raw []byte) {
	c.lmu.Lock()
	l := c.listener
	c.lmu.Unlock()
	if l != nil {
		l(raw)
	}
}

// State returns the current connection state.
func (c *WebSocketClient) State() models.ConnectionState { return c.hub.get() }

// States emits the current state and every transition until ctx is done.
func (c *WebSocketClient) States(ctx context.Context) <-chan models.ConnectionState {
	return c.hub.subscribe(ctx)
}

// SessionKey returns a copy of the session key, or nil outside a session.
func (c *WebSocketClient) SessionKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionKey == nil {
		return nil
	}
	return append([]byte(nil), c.sessionKey...)
}

// Connect starts the connection loop toward d. A second call while a loop is
// already running is a no-op.
func (c *WebSocketClient) Connect(ctx context.Context, d models.Device) error {
	var peerKey *rsa.PublicKey
	if c.psk == nil {
		var err error
		peerKey, err = cryptox.ParsePublicKey(d.PublicKey)
		if err != nil {
			return err
		}
	}
	if d.Endpoint == "" {
		return fmt.Errorf("%w: device has no endpoint", common.ErrUnreachable)
	}

	c.mu.Lock()
	if c.cancelRun != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancelRun = cancel
	c.device = d
	c.attempts = 0
	c.mu.Unlock()

	c.hub.set(models.StateConnecting)
	go c.run(runCtx, d, peerKey)
	return nil
}

// run owns the dial / handshake / read / reconnect cycle until the session
// ends deliberately or the reconnect budget is spent.
func (c *WebSocketClient) run(ctx context.Context, d models.Device, peerKey *rsa.PublicKey) {
	backoff := reconnectBackoff()
	for {
		if stop := c.runOnce(ctx, d, peerKey); stop {
			c.teardown()
			return
		}

		// Fresh schedule after a completed session: runOnce only returns
		// stop=false after either a failed dial or a dropped session, and a
		// dropped session means the handshake succeeded and reset the count.
		if c.resetAttempts() {
			backoff = reconnectBackoff()
		}

		delay, exhausted := backoff.Next()
		if exhausted {
			c.log.Warn(ctx, "reconnect attempts exhausted", "attempts", MaxReconnectAttempts)
			c.teardown()
			return
		}
		c.bumpAttempts()
		c.log.Info(ctx, "reconnecting", "delay", delay.String())

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			c.teardown()
			return
		case <-t.C:
		}
	}
}

// runOnce performs one dial + handshake + read-pump cycle. stop reports that
// the loop must end instead of scheduling a reconnect.
func (c *WebSocketClient) runOnce(ctx context.Context, d models.Device, peerKey *rsa.PublicKey) (stop bool) {
	conn, err := c.dial(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		if errors.Is(err, common.ErrCertUntrusted) {
			c.log.Error(ctx, "peer certificate rejected", "error", err)
			return true
		}
		c.log.Warn(ctx, "dial failed", "endpoint", d.Endpoint, "error", err)
		return false
	}

	key, err := c.establishSession(ctx, conn, peerKey)
	if err != nil {
		c.log.Error(ctx, "handshake failed", "error", err)
		c.closeWith(conn, websocket.ClosePolicyViolation)
		return true
	}

	c.mu.Lock()
	c.conn = conn
	c.sessionKey = key
	attempts := c.attempts
	c.attempts = 0
	c.mu.Unlock()
	c.hub.set(models.StateConnected)
	c.log.Info(ctx, "session established", "endpoint", d.Endpoint)
	c.sendConnectionStatus(ctx, attempts)

	closeCode := c.readPump(ctx, conn)
	c.dropSession(conn)

	if ctx.Err() != nil {
		return true
	}
	if closeCode == websocket.CloseNormalClosure || closeCode == websocket.ClosePolicyViolation {
		c.log.Info(ctx, "peer closed session", "code", closeCode)
		return true
	}
	c.hub.set(models.StateConnecting)
	return false
}

func (c *WebSocketClient) dial(ctx context.Context, d models.Device) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  pinning.TLSConfig(c.trust),
		HandshakeTimeout: 10 * time.Second,
	}
	u := url.URL{Scheme: "wss", Host: d.Endpoint}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *WebSocketClient) establishSession(ctx context.Context, conn *websocket.Conn, peerKey *rsa.PublicKey) ([]byte, error) {
	if c.psk != nil {
		c.log.Warn(ctx, "pre-shared session key in use, handshake skipped")
		return append([]byte(nil), c.psk...), nil
	}
	return runHandshake(&wsFrameConn{conn: conn, writeMu: &c.writeMu}, peerKey)
}

// readPump consumes the connection until it drops and returns the close code
// the peer sent, or -1 when the connection ended without one.
func (c *WebSocketClient) readPump(ctx context.Context, conn *websocket.Conn) int {
	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go c.pingLoop(pingCtx, conn)

	limiter := rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit)
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return ce.Code
			}
			if ctx.Err() == nil {
				c.log.Warn(ctx, "read failed", "error", err)
			}
			return -1
		}
		if !limiter.Allow() {
			c.log.Warn(ctx, "inbound rate limit exceeded, dropping connection")
			conn.Close()
			return -1
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(ctx, raw)
	}
}

// dispatch routes one inbound frame: encrypted envelopes and unknown-type
// controls go to the listener, recognized controls are consumed here.
func (c *WebSocketClient) dispatch(ctx context.Context, raw []byte) {
	if envelope.Classify(raw) == envelope.FrameEncrypted {
		c.deliver(raw)
		return
	}
	ctrl, err := envelope.DecodeControl(raw)
	if err != nil {
		c.log.Warn(ctx, "dropping malformed control frame", "error", err)
		return
	}
	if !envelope.KnownType(ctrl.Type) {
		c.log.Debug(ctx, "passing through unknown control type", "type", ctrl.Type)
		c.deliver(raw)
		return
	}
	c.log.Debug(ctx, "control frame", "type", ctrl.Type, "status", ctrl.Status)
}

func (c *WebSocketClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) sendConnectionStatus(ctx context.Context, attempts int) {
	frame, err := envelope.EncodeControl(&envelope.Control{
		Type:      envelope.TypeConnectionStatus,
		Status:    "connected",
		Timestamp: time.Now().UnixMilli(),
		Stats:     map[string]any{"reconnect_attempts": attempts},
	})
	if err != nil {
		return
	}
	if err := c.Send(ctx, string(frame)); err != nil {
		c.log.Debug(ctx, "connection_status not sent", "error", err)
	}
}

// Send writes one wire frame. Refused unless a session is established.
func (c *WebSocketClient) Send(ctx context.Context, frame string) error {
	c.mu.Lock()
	conn := c.conn
	ready := conn != nil && c.sessionKey != nil
	c.mu.Unlock()
	if !ready || c.hub.get() != models.StateConnected {
		return common.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSendFail, err)
	}
	return nil
}

// Disconnect ends the session deliberately: close 1000 to the peer, the
// reconnect loop cancelled, the session key dropped.
func (c *WebSocketClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancelRun
	conn := c.conn
	c.mu.Unlock()

	c.hub.set(models.StateDisconnecting)
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.closeWith(conn, websocket.CloseNormalClosure)
	}
	c.dropSession(conn)
	c.teardown()
	return nil
}

func (c *WebSocketClient) closeWith(conn *websocket.Conn, code int) {
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	conn.Close()
}

// dropSession zeroes and forgets the session key and the connection.
func (c *WebSocketClient) dropSession(conn *websocket.Conn) {
	c.mu.Lock()
	cryptox.Wipe(c.sessionKey)
	c.sessionKey = nil
	if conn != nil && c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *WebSocketClient) teardown() {
	c.mu.Lock()
	if c.cancelRun != nil {
		c.cancelRun()
		c.cancelRun = nil
	}
	c.mu.Unlock()
	c.hub.set(models.StateDisconnected)
}

func (c *WebSocketClient) resetAttempts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts == 0
}

func (c *WebSocketClient) bumpAttempts() {
	c.mu.Lock()
	c.attempts++
	c.mu.Unlock()
}

// wsFrameConn adapts a websocket connection to the handshake's view.
type wsFrameConn struct {
	conn    *websocket.Conn
	writeMu *sync.Mutex
}

func (w *wsFrameConn) WriteFrame(data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsFrameConn) ReadFrame(timeout time.Duration) ([]byte, error) {
	w.conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := w.conn.ReadMessage()
	return raw, err
}

var _ Transport = (*WebSocketClient)(nil)
