package transport

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
)

// serialReadBuffer is the fallback channel's read unit: one message per read.
const serialReadBuffer = 1024

// SerialDialer opens a byte stream to a peer on the paired short-range
// channel. addr is the device's FallbackAddress, channel the well-known
// service name.
type SerialDialer interface {
	Dial(ctx context.Context, addr, channel string) (net.Conn, error)
}

// TCPSerialDialer is the development stand-in for a short-range pairing
// stack: it dials the fallback address over plain TCP.
type TCPSerialDialer struct{}

func (TCPSerialDialer) Dial(ctx context.Context, addr, _ string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// SerialClient is the fallback transport: a framed byte stream used when the
// primary channel is unavailable. Text payloads only; the sync engine
// enforces the content policy before frames reach Send.
type SerialClient struct {
	dialer SerialDialer
	log    logging.Logger
	hub    *stateHub

	mu         sync.Mutex
	conn       net.Conn
	sessionKey []byte
	cancelRead context.CancelFunc

	lmu      sync.Mutex
	listener Listener
}

// NewSerialClient builds the fallback transport over the given dialer.
func NewSerialClient(dialer SerialDialer, log logging.Logger) *SerialClient {
	return &SerialClient{
		dialer: dialer,
		log:    log.With("component", "transport", "channel", "serial"),
		hub:    newStateHub(),
	}
}

// SetListener installs the inbound frame callback.
func (c *SerialClient) SetListener(l Listener) {
	c.lmu.Lock()
	c.listener = l
	c.lmu.Unlock()
}

func (c *SerialClient) deliver(raw []byte) {
	c.lmu.Lock()
	l := c.listener
	c.lmu.Unlock()
	if l != nil {
		l(raw)
	}
}

// State returns the current connection state.
func (c *SerialClient) State() models.ConnectionState { return c.hub.get() }

// States emits the current state and every transition until ctx is done.
func (c *SerialClient) States(ctx context.Context) <-chan models.ConnectionState {
	return c.hub.subscribe(ctx)
}

// SessionKey returns a copy of the session key, or nil outside a session.
func (c *SerialClient) SessionKey() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionKey == nil {
		return nil
	}
	return append([]byte(nil), c.sessionKey...)
}

// Connect dials the device's fallback address and runs the key exchange.
// The serial channel's peer acknowledges lazily, so the session is usable
// as soon as the key_exchange frame is written.
func (c *SerialClient) Connect(ctx context.Context, d models.Device) error {
	if d.FallbackAddress == nil || *d.FallbackAddress == "" {
		return fmt.Errorf("%w: device has no fallback address", common.ErrUnreachable)
	}
	peerKey, err := cryptox.ParsePublicKey(d.PublicKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.hub.set(models.StateConnecting)
	conn, err := c.dialer.Dial(ctx, *d.FallbackAddress, common.FallbackChannelName)
	if err != nil {
		c.hub.set(models.StateDisconnected)
		return fmt.Errorf("%w: %v", common.ErrUnreachable, err)
	}

	key, err := sendKeyExchange(conn, peerKey)
	if err != nil {
		conn.Close()
		c.hub.set(models.StateDisconnected)
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.sessionKey = key
	c.cancelRead = cancel
	c.mu.Unlock()
	c.hub.set(models.StateConnected)
	c.log.Info(ctx, "fallback channel open", "addr", *d.FallbackAddress)

	go c.readLoop(readCtx, conn)
	return nil
}

// sendKeyExchange wraps a fresh session key and writes the key_exchange
// frame without waiting for an ack.
func sendKeyExchange(conn net.Conn, pub *rsa.PublicKey) ([]byte, error) {
	key := cryptox.GenerateRandByteArray(cryptox.KeySize)
	wrapped, err := cryptox.WrapSessionKey(pub, key)
	if err != nil {
		return nil, err
	}
	frame, err := envelope.EncodeControl(&envelope.Control{
		Type:         envelope.TypeKeyExchange,
		EncryptedKey: base64.StdEncoding.EncodeToString(wrapped),
	})
	if err != nil {
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := conn.Write(frame); err != nil {
		return nil, fmt.Errorf("%w: key_exchange send: %v", common.ErrHandshakeRejected, err)
	}
	return key, nil
}

// readLoop reads one message per read into a fixed buffer and hands it to
// the listener. Control frames are consumed like on the primary channel.
func (c *SerialClient) readLoop(ctx context.Context, conn net.Conn) {
	defer c.dropSession(conn)
	buf := make([]byte, serialReadBuffer)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn(ctx, "fallback read failed", "error", err)
			}
			return
		}
		raw := append([]byte(nil), buf[:n]...)
		if envelope.Classify(raw) == envelope.FrameEncrypted {
			c.deliver(raw)
			continue
		}
		ctrl, err := envelope.DecodeControl(raw)
		if err != nil {
			c.log.Warn(ctx, "dropping malformed fallback frame", "error", err)
			continue
		}
		if !envelope.KnownType(ctrl.Type) {
			c.deliver(raw)
			continue
		}
		c.log.Debug(ctx, "fallback control frame", "type", ctrl.Type, "status", ctrl.Status)
	}
}

// Send writes one envelope per call.
func (c *SerialClient) Send(ctx context.Context, frame string) error {
	c.mu.Lock()
	conn := c.conn
	ready := conn != nil && c.sessionKey != nil
	c.mu.Unlock()
	if !ready {
		return common.ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := conn.Write([]byte(frame)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrSendFail, err)
	}
	return nil
}

// Disconnect closes the fallback channel and drops the session key.
func (c *SerialClient) Disconnect(ctx context.Context) error {
	c.hub.set(models.StateDisconnecting)
	c.mu.Lock()
	cancel := c.cancelRead
	conn := c.conn
	c.cancelRead = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.dropSession(conn)
	return nil
}

func (c *SerialClient) dropSession(conn net.Conn) {
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
	c.hub.set(models.StateDisconnected)
}

var _ Transport = (*SerialClient)(nil)
