// Package envelope implements the textual wire format of the clipboard
// bridge: encrypted frames as "b64(iv)|b64(ciphertext+tag)" and plaintext
// JSON control frames with a "type" discriminator.
package envelope

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
)

// Separator splits the IV from the ciphertext in an encrypted frame.
const Separator = "|"

// Seal encrypts plaintext under key and encodes it as an encrypted frame.
// Base64 is the standard alphabet with padding; receivers must tolerate
// stripped padding (the Android side emits NO_WRAP/NO_PADDING).
func Seal(key, plaintext []byte) (string, error) {
	iv, ct, err := cryptox.Encrypt(key, plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(iv) + Separator + base64.StdEncoding.EncodeToString(ct), nil
}

// SealText is Seal for string payloads.
func SealText(key []byte, plaintext string) (string, error) {
	return Seal(key, []byte(plaintext))
}

// Open parses an encrypted frame and decrypts it under key. Structural
// problems yield common.ErrMalformedFrame; authentication failures
// propagate common.ErrDecryptAuth from cryptox.
func Open(key []byte, wire string) ([]byte, error) {
	ivPart, ctPart, found := strings.Cut(wire, Separator)
	if !found || ivPart == "" || ctPart == "" {
		return nil, fmt.Errorf("%w: missing iv separator", common.ErrMalformedFrame)
	}
	iv, err := cryptox.DecodeBase64(ivPart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad iv encoding: %v", common.ErrMalformedFrame, err)
	}
	ct, err := cryptox.DecodeBase64(ctPart)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext encoding: %v", common.ErrMalformedFrame, err)
	}
	return cryptox.Decrypt(key, iv, ct)
}

// OpenText is Open for string payloads.
func OpenText(key []byte, wire string) (string, error) {
	b, err := Open(key, wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// FrameKind classifies a raw inbound buffer.
type FrameKind int

const (
	// FrameControl is a plaintext JSON control frame.
	FrameControl FrameKind = iota
	// FrameEncrypted is an iv|ciphertext envelope.
	FrameEncrypted
)

// Classify implements the receive-time rule: a buffer that contains the
// separator and does not parse as JSON is an encrypted frame; everything
// else is handed to the control-frame decoder.
func Classify(raw []byte) FrameKind {
	if bytes.Contains(raw, []byte(Separator)) && !json.Valid(raw) {
		return FrameEncrypted
	}
	return FrameControl
}
