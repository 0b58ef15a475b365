package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/appconnect/internal/common"
)

// ControlType discriminates plaintext control frames.
type ControlType string

const (
	TypeKeyExchange         ControlType = "key_exchange"
	TypeKeyExchangeAck      ControlType = "key_exchange_ack"
	TypeErrorReport         ControlType = "error_report"
	TypeConnectionStatus    ControlType = "connection_status"
	TypeClipboardSyncResult ControlType = "clipboard_sync_result"
)

// KnownType reports whether t is one of the recognized control types.
// Unknown types are logged by the transport and passed through untouched.
func KnownType(t ControlType) bool {
	switch t {
	case TypeKeyExchange, TypeKeyExchangeAck, TypeErrorReport,
		TypeConnectionStatus, TypeClipboardSyncResult:
		return true
	}
	return false
}

// Ack statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Control is the union of all control-frame payloads; per-type fields are
// omitted when empty, mirroring the companion's dict-shaped messages.
type Control struct {
	Type ControlType `json:"type"`

	// key_exchange
	EncryptedKey string `json:"encrypted_key,omitempty"`

	// Status: key_exchange_ack and connection_status. Message:
	// key_exchange_ack, error_report and clipboard_sync_result.
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// error_report
	ErrorType string         `json:"error_type,omitempty"`
	Details   map[string]any `json:"details,omitempty"`

	// connection_status
	Stats map[string]any `json:"stats,omitempty"`

	// clipboard_sync_result
	Success     *bool  `json:"success,omitempty"`
	ClipboardID string `json:"clipboard_id,omitempty"`

	Timestamp int64 `json:"timestamp,omitempty"`
}

// EncodeControl serializes a control frame for the wire.
func EncodeControl(c *Control) ([]byte, error) {
	if c.Type == "" {
		return nil, fmt.Errorf("%w: control frame without type", common.ErrMalformedFrame)
	}
	return json.Marshal(c)
}

// DecodeControl parses a control frame. A buffer that is not a JSON object
// or carries no type yields common.ErrMalformedFrame.
func DecodeControl(raw []byte) (*Control, error) {
	var c Control
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedFrame, err)
	}
	if c.Type == "" {
		return nil, fmt.Errorf("%w: control frame without type", common.ErrMalformedFrame)
	}
	return &c, nil
}

// NewErrorReport builds the error_report frame the engine emits when a
// frame cannot be decrypted or a send fails.
func NewErrorReport(errorType, message string, nowMs int64) *Control {
	return &Control{
		Type:      TypeErrorReport,
		ErrorType: errorType,
		Message:   message,
		Timestamp: nowMs,
	}
}

// NewSyncResult builds the best-effort clipboard_sync_result frame reported
// after an inbound item is handled.
func NewSyncResult(success bool, clipboardID, message string, nowMs int64) *Control {
	return &Control{
		Type:        TypeClipboardSyncResult,
		Success:     &success,
		ClipboardID: clipboardID,
		Message:     message,
		Timestamp:   nowMs,
	}
}
