package transport

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
)

// HandshakeTimeout bounds the wait for the peer's key_exchange_ack.
const HandshakeTimeout = 10 * time.Second

// frameConn is the minimal connection surface the handshake needs. The
// websocket connection satisfies it through wsFrameConn; the serial
// transport does not use it and sends its key_exchange via sendKeyExchange.
type frameConn interface {
	WriteFrame(data []byte) error
	ReadFrame(timeout time.Duration) ([]byte, error)
}

// runHandshake generates a fresh session key, wraps it with the peer's
// long-term key, and exchanges it over conn. The pre-ack receive window
// admits only the ack: any other frame is an ordering violation and fails
// the handshake. The caller closes the connection with code 1008 on error
// and must not reconnect.
func runHandshake(conn frameConn, peerKey *rsa.PublicKey) ([]byte, error) {
	key := cryptox.GenerateRandByteArray(cryptox.KeySize)
	wrapped, err := cryptox.WrapSessionKey(peerKey, key)
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
	if err := conn.WriteFrame(frame); err != nil {
		return nil, fmt.Errorf("%w: key_exchange send: %v", common.ErrHandshakeRejected, err)
	}

	raw, err := conn.ReadFrame(HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for ack: %v", common.ErrHandshakeRejected, err)
	}
	if envelope.Classify(raw) != envelope.FrameControl {
		return nil, fmt.Errorf("%w: non-control frame before ack", common.ErrHandshakeRejected)
	}
	ack, err := envelope.DecodeControl(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrHandshakeRejected, err)
	}
	if ack.Type != envelope.TypeKeyExchangeAck {
		return nil, fmt.Errorf("%w: got %q before ack", common.ErrHandshakeRejected, ack.Type)
	}
	if ack.Status != envelope.StatusOK {
		return nil, fmt.Errorf("%w: peer replied %q: %s", common.ErrHandshakeRejected, ack.Status, ack.Message)
	}
	return key, nil
}
