package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/cryptox"
)

func TestNewTextItem(t *testing.T) {
	item := NewTextItem("hello", 100, 1000)

	assert.NotEmpty(t, item.ID)
	assert.Equal(t, ContentTypeText, item.ContentType)
	assert.Equal(t, int64(100), item.Timestamp)
	assert.Equal(t, int64(1000), item.TTL)
	assert.False(t, item.Synced)
	assert.Equal(t, cryptox.Sha256HexUpper([]byte("hello")), item.Hash)

	other := NewTextItem("hello", 100, 1000)
	assert.NotEqual(t, item.ID, other.ID)
}

func TestClipboardItem_Expiry(t *testing.T) {
	item := NewTextItem("x", 1000, 500)

	assert.Equal(t, int64(1500), item.ExpiresAt())
	assert.False(t, item.Expired(1499))
	assert.True(t, item.Expired(1500))
}

func TestClipboardItem_WireFieldNames(t *testing.T) {
	src := "phone"
	item := &ClipboardItem{
		ID:             "id1",
		Content:        "hello",
		ContentType:    ContentTypeText,
		Timestamp:      100,
		TTL:            1000,
		SourceDeviceID: &src,
		Hash:           "H",
	}
	raw, err := json.Marshal(item)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, field := range []string{"id", "content", "contentType", "timestamp", "ttl", "synced", "sourceDeviceId", "hash"} {
		assert.Contains(t, m, field)
	}
}

func TestQrPayload_ShortWireNames(t *testing.T) {
	var p QrPayload
	require.NoError(t, json.Unmarshal([]byte(
		`{"n":"my-pc","ip":"192.168.1.10","p":8765,"k":"cGsK","fp":"SHA256:AA"}`), &p))

	assert.Equal(t, "my-pc", p.Name)
	assert.Equal(t, "192.168.1.10", p.IP)
	assert.Equal(t, 8765, p.Port)
	assert.Equal(t, "cGsK", p.PublicKey)
	assert.Equal(t, "SHA256:AA", p.Fingerprint)
}

func TestDevice_EndpointNotSerialized(t *testing.T) {
	raw, err := json.Marshal(&Device{ID: "a", Endpoint: "10.0.0.2:8765"})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "10.0.0.2")
}
