// Package models defines the domain types shared across stores, transports
// and the sync engine.
package models

import (
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/google/uuid"
)

// ContentType classifies a clipboard item.
type ContentType string

const (
	ContentTypeText  ContentType = "TEXT"
	ContentTypeImage ContentType = "IMAGE"
	ContentTypeFile  ContentType = "FILE"
)

// DefaultTTLMs is the lifetime of a clipboard item unless configured
// otherwise: 24 hours, in milliseconds.
const DefaultTTLMs = 24 * 60 * 60 * 1000

// ClipboardItem is one synchronized clipboard entry. Field names match the
// JSON the peer exchanges on the wire.
//
// The content field holds plaintext in memory and on the wire; the store
// seals it with the device-bound at-rest key before it touches disk.
type ClipboardItem struct {
	ID             string      `json:"id"`
	Content        string      `json:"content"`
	ContentType    ContentType `json:"contentType"`
	Timestamp      int64       `json:"timestamp"`
	TTL            int64       `json:"ttl"`
	Synced         bool        `json:"synced"`
	SourceDeviceID *string     `json:"sourceDeviceId"`
	Hash           string      `json:"hash"`
}

// NewTextItem builds a locally-created TEXT item: fresh UUID, creation
// timestamp, unsynced, content hash precomputed for loop suppression.
func NewTextItem(content string, nowMs int64, ttlMs int64) *ClipboardItem {
	return &ClipboardItem{
		ID:          uuid.NewString(),
		Content:     content,
		ContentType: ContentTypeText,
		Timestamp:   nowMs,
		TTL:         ttlMs,
		Synced:      false,
		Hash:        cryptox.Sha256HexUpper([]byte(content)),
	}
}

// ExpiresAt returns the absolute expiry in wall-clock milliseconds.
func (i *ClipboardItem) ExpiresAt() int64 {
	return i.Timestamp + i.TTL
}

// Expired reports whether the item is eligible for deletion at nowMs.
func (i *ClipboardItem) Expired(nowMs int64) bool {
	return nowMs >= i.ExpiresAt()
}
