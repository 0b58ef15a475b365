// Package common defines shared constants and sentinel errors used across
// the agent. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Pairing errors.
	ErrQRMalformed = errors.New("qr payload malformed")
	ErrUnreachable = errors.New("peer unreachable")

	// TLS and session handshake errors.
	ErrCertUntrusted     = errors.New("certificate untrusted")
	ErrWrapFail          = errors.New("session key wrap failed")
	ErrUnwrapFail        = errors.New("session key unwrap failed")
	ErrHandshakeRejected = errors.New("handshake rejected")

	// Frame-level errors.
	ErrDecryptAuth    = errors.New("decryption authentication failed")
	ErrMalformedFrame = errors.New("malformed frame")

	// Transport and sync errors.
	ErrNotConnected       = errors.New("not connected")
	ErrSendFail           = errors.New("send failed")
	ErrStoreDecrypt       = errors.New("stored content decryption failed")
	ErrContentUnsupported = errors.New("content type not supported on this transport")
)
