package transport

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
)

type pinnedTrust struct {
	mu      sync.Mutex
	devices []models.Device
}

func (p *pinnedTrust) ListTrusted() []models.Device {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Device(nil), p.devices...)
}

// wsPeer is a loopback peer: a TLS websocket endpoint that answers the key
// exchange and relays frames both ways.
type wsPeer struct {
	srv    *httptest.Server
	priv   *rsa.PrivateKey
	accept bool

	mu         sync.Mutex
	sessionKey []byte
	received   chan []byte
	conns      []*websocket.Conn
}

func newWSPeer(t *testing.T, accept bool) *wsPeer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &wsPeer{priv: priv, accept: accept, received: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}
	p.srv = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		p.mu.Lock()
		p.conns = append(p.conns, conn)
		p.mu.Unlock()
		p.serve(conn)
	}))
	t.Cleanup(p.srv.Close)
	return p
}

func (p *wsPeer) serve(conn *websocket.Conn) {
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return
	}
	ctrl, err := envelope.DecodeControl(raw)
	if err != nil || ctrl.Type != envelope.TypeKeyExchange {
		return
	}

	if !p.accept {
		ack, _ := envelope.EncodeControl(&envelope.Control{
			Type:    envelope.TypeKeyExchangeAck,
			Status:  envelope.StatusError,
			Message: "rejected by peer",
		})
		conn.WriteMessage(websocket.TextMessage, ack)
		return
	}

	wrapped, err := base64.StdEncoding.DecodeString(ctrl.EncryptedKey)
	if err != nil {
		return
	}
	key, err := cryptox.UnwrapSessionKey(p.priv, wrapped)
	if err != nil {
		return
	}
	p.mu.Lock()
	p.sessionKey = key
	p.mu.Unlock()

	ack, _ := envelope.EncodeControl(&envelope.Control{
		Type:   envelope.TypeKeyExchangeAck,
		Status: envelope.StatusOK,
	})
	if conn.WriteMessage(websocket.TextMessage, ack) != nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		p.received <- raw
	}
}

func (p *wsPeer) key() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionKey
}

func (p *wsPeer) send(t *testing.T, raw []byte) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.conns)
	require.NoError(t, p.conns[len(p.conns)-1].WriteMessage(websocket.TextMessage, raw))
}

func (p *wsPeer) endpoint() string {
	return strings.TrimPrefix(p.srv.URL, "https://")
}

func (p *wsPeer) fingerprint() string {
	return cryptox.CertFingerprint(p.srv.Certificate().Raw)
}

func (p *wsPeer) device(t *testing.T) models.Device {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&p.priv.PublicKey)
	require.NoError(t, err)
	return models.Device{
		ID:                     "peer-1",
		Name:                   "my-pc",
		PublicKey:              base64.StdEncoding.EncodeToString(der),
		CertificateFingerprint: p.fingerprint(),
		IsTrusted:              true,
		Endpoint:               p.endpoint(),
	}
}

func recvFrame(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestWebSocketClient_SendRefusedBeforeConnect(t *testing.T) {
	c := NewWebSocketClient(&pinnedTrust{}, logging.NewDefault(slog.LevelError), nil)
	assert.Equal(t, models.StateDisconnected, c.State())
	assert.Nil(t, c.SessionKey())
	require.ErrorIs(t, c.Send(context.Background(), "aXY=|Y3Q="), common.ErrNotConnected)
}

func TestWebSocketClient_ConnectValidatesDevice(t *testing.T) {
	c := NewWebSocketClient(&pinnedTrust{}, logging.NewDefault(slog.LevelError), nil)

	err := c.Connect(context.Background(), models.Device{PublicKey: "garbage", Endpoint: "h:1"})
	require.Error(t, err)

	peer := newWSPeer(t, true)
	d := peer.device(t)
	d.Endpoint = ""
	require.ErrorIs(t, c.Connect(context.Background(), d), common.ErrUnreachable)
}

func TestWebSocketClient_SessionRoundTrip(t *testing.T) {
	peer := newWSPeer(t, true)
	device := peer.device(t)
	trust := &pinnedTrust{devices: []models.Device{device}}
	c := NewWebSocketClient(trust, logging.NewDefault(slog.LevelError), nil)

	inbound := make(chan []byte, 16)
	c.SetListener(func(raw []byte) { inbound <- raw })

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx, device))
	require.Eventually(t, func() bool {
		return c.State() == models.StateConnected
	}, 5*time.Second, 10*time.Millisecond)

	key := c.SessionKey()
	require.NotNil(t, key)
	assert.Equal(t, peer.key(), key)

	// The session announcement arrives first.
	status, err := envelope.DecodeControl(recvFrame(t, peer.received))
	require.NoError(t, err)
	assert.Equal(t, envelope.TypeConnectionStatus, status.Type)

	out, err := envelope.SealText(key, "to the peer")
	require.NoError(t, err)
	require.NoError(t, c.Send(ctx, out))
	got, err := envelope.OpenText(peer.key(), string(recvFrame(t, peer.received)))
	require.NoError(t, err)
	assert.Equal(t, "to the peer", got)

	in, err := envelope.SealText(peer.key(), "from the peer")
	require.NoError(t, err)
	peer.send(t, []byte(in))
	got, err = envelope.OpenText(key, string(recvFrame(t, inbound)))
	require.NoError(t, err)
	assert.Equal(t, "from the peer", got)

	require.NoError(t, c.Disconnect(ctx))
	require.Eventually(t, func() bool {
		return c.State() == models.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, c.SessionKey())
}

func TestWebSocketClient_HandshakeRejectionStopsClient(t *testing.T) {
	peer := newWSPeer(t, false)
	device := peer.device(t)
	trust := &pinnedTrust{devices: []models.Device{device}}
	c := NewWebSocketClient(trust, logging.NewDefault(slog.LevelError), nil)

	require.NoError(t, c.Connect(context.Background(), device))
	require.Eventually(t, func() bool {
		return c.State() == models.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, c.SessionKey())
}

func TestWebSocketClient_UntrustedCertificateStopsClient(t *testing.T) {
	peer := newWSPeer(t, true)
	device := peer.device(t)
	device.CertificateFingerprint = "SHA256:" + strings.Repeat("0", 64)
	trust := &pinnedTrust{devices: []models.Device{device}}
	c := NewWebSocketClient(trust, logging.NewDefault(slog.LevelError), nil)

	require.NoError(t, c.Connect(context.Background(), device))
	require.Eventually(t, func() bool {
		return c.State() == models.StateDisconnected
	}, 5*time.Second, 10*time.Millisecond)
	assert.Nil(t, c.SessionKey())
}

func TestWebSocketClient_PreSharedKeySkipsHandshake(t *testing.T) {
	psk := cryptox.GenerateRandByteArray(cryptox.KeySize)
	c := NewWebSocketClient(&pinnedTrust{}, logging.NewDefault(slog.LevelError), psk)

	// With a pre-shared key the device's long-term key is not consulted.
	err := c.Connect(context.Background(), models.Device{Endpoint: ""})
	require.ErrorIs(t, err, common.ErrUnreachable)
}

func TestDispatch_RoutesFrames(t *testing.T) {
	c := NewWebSocketClient(&pinnedTrust{}, logging.NewDefault(slog.LevelError), nil)
	var delivered [][]byte
	c.SetListener(func(raw []byte) { delivered = append(delivered, raw) })
	ctx := context.Background()

	c.dispatch(ctx, []byte("aXY=|Y3Q="))
	require.Len(t, delivered, 1)

	known, err := envelope.EncodeControl(&envelope.Control{Type: envelope.TypeConnectionStatus, Status: "connected"})
	require.NoError(t, err)
	c.dispatch(ctx, known)
	assert.Len(t, delivered, 1)

	c.dispatch(ctx, []byte(`{"type":"future_feature"}`))
	assert.Len(t, delivered, 2)

	c.dispatch(ctx, []byte("not a frame at all"))
	assert.Len(t, delivered, 2)
}
