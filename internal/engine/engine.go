// Package engine orchestrates bidirectional clipboard flow between the
// platform adapter, the clipboard store, and the transports, applying the
// loop-suppression, delivery, and content-type policies.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
	"github.com/dmitrijs2005/appconnect/internal/platform"
	"github.com/dmitrijs2005/appconnect/internal/store/clipboard"
	"github.com/dmitrijs2005/appconnect/internal/transport"
)

const (
	// LoopSuppressionWindow inhibits re-sending a local change event that
	// follows our own clipboard write.
	LoopSuppressionWindow = 2 * time.Second

	// NotifyDebounce coalesces background notifications: a newer inbound
	// item within this window supersedes the pending one.
	NotifyDebounce = 500 * time.Millisecond

	previewLimit = 80
)

// Engine drives the outbound and inbound clipboard pipelines. The primary
// transport is preferred; the fallback is used when the primary has no
// session, with IMAGE/FILE content refused on it.
type Engine struct {
	store    clipboard.Repository
	primary  transport.Transport
	fallback transport.Transport
	platform platform.Adapter

	// localKey seals frames when no session key exists. Dev/test only;
	// production traffic always rides the session key.
	localKey []byte

	deviceID string
	ttlMs    int64
	log      logging.Logger
	now      func() int64

	mu              sync.Mutex
	lastWrittenHash string
	lastWrittenTime int64
	debounce        *time.Timer
}

// New wires the engine. fallback may be nil.
func New(store clipboard.Repository, primary, fallback transport.Transport,
	adapter platform.Adapter, localKey []byte, deviceID string, ttlMs int64, log logging.Logger) *Engine {
	if ttlMs <= 0 {
		ttlMs = models.DefaultTTLMs
	}
	return &Engine{
		store:    store,
		primary:  primary,
		fallback: fallback,
		platform: adapter,
		localKey: append([]byte(nil), localKey...),
		deviceID: deviceID,
		ttlMs:    ttlMs,
		log:      log.With("component", "engine"),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Run installs the transport listeners and consumes local clipboard changes
// until ctx is done. Failures are reported and absorbed; the engine only
// stops with its context.
func (e *Engine) Run(ctx context.Context) error {
	e.primary.SetListener(func(raw []byte) {
		go e.HandleInbound(ctx, e.primary, raw)
	})
	if e.fallback != nil {
		e.fallback.SetListener(func(raw []byte) {
			go e.HandleInbound(ctx, e.fallback, raw)
		})
	}

	go e.watchConnected(ctx, e.primary)
	if e.fallback != nil {
		go e.watchConnected(ctx, e.fallback)
	}

	for text := range e.platform.Changes(ctx) {
		e.HandleLocalChange(ctx, text)
	}
	return nil
}

// watchConnected replays the unsynced backlog every time t reaches
// Connected.
func (e *Engine) watchConnected(ctx context.Context, t transport.Transport) {
	for state := range t.States(ctx) {
		if state == models.StateConnected {
			e.replayUnsynced(ctx)
		}
	}
}

func (e *Engine) replayUnsynced(ctx context.Context) {
	items, err := e.store.ListUnsynced(ctx)
	if err != nil {
		e.log.Error(ctx, "failed to load unsynced backlog", "error", err)
		return
	}
	for i := range items {
		item := items[i]
		if err := e.sendItem(ctx, &item); err != nil {
			e.log.Warn(ctx, "backlog replay stopped", "id", item.ID, "error", err)
			return
		}
		if err := e.store.MarkSynced(ctx, item.ID); err != nil {
			e.log.Error(ctx, "failed to mark item synced", "id", item.ID, "error", err)
		}
	}
}

// HandleLocalChange runs the outbound pipeline for one local clipboard
// event: suppress → persist → send → mark synced.
func (e *Engine) HandleLocalChange(ctx context.Context, text string) {
	if text == "" {
		return
	}

	hash := cryptox.Sha256HexUpper([]byte(text))
	if e.suppressed(hash) {
		e.log.Debug(ctx, "loop suppression dropped local change")
		return
	}

	item := models.NewTextItem(text, e.now(), e.ttlMs)
	if e.deviceID != "" {
		id := e.deviceID
		item.SourceDeviceID = &id
	}
	if err := e.store.Put(ctx, item); err != nil {
		e.log.Error(ctx, "failed to persist local item", "error", err)
		return
	}

	if err := e.sendItem(ctx, item); err != nil {
		e.log.Warn(ctx, "item queued, send failed", "id", item.ID, "error", err)
		return
	}
	if err := e.store.MarkSynced(ctx, item.ID); err != nil {
		e.log.Error(ctx, "failed to mark item synced", "id", item.ID, "error", err)
	}
}

func (e *Engine) suppressed(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return hash == e.lastWrittenHash && e.now()-e.lastWrittenTime < LoopSuppressionWindow.Milliseconds()
}

// arm records our own clipboard write so the echoing change event is
// dropped.
func (e *Engine) arm(hash string) {
	e.mu.Lock()
	e.lastWrittenHash = hash
	e.lastWrittenTime = e.now()
	e.mu.Unlock()
}

// active returns the transport to use: the primary when it has a session,
// otherwise the fallback.
func (e *Engine) active() (t transport.Transport, isFallback bool) {
	if e.primary.State() == models.StateConnected {
		return e.primary, false
	}
	if e.fallback != nil && e.fallback.State() == models.StateConnected {
		return e.fallback, true
	}
	return nil, false
}

func (e *Engine) sendItem(ctx context.Context, item *models.ClipboardItem) error {
	t, isFallback := e.active()
	if t == nil {
		return common.ErrNotConnected
	}
	if isFallback && item.ContentType != models.ContentTypeText {
		msg := fmt.Sprintf("%s content cannot be sent over the fallback channel", item.ContentType)
		if err := e.platform.Notify(ctx, msg, nil); err != nil {
			e.log.Warn(ctx, "failed to surface content policy message", "error", err)
		}
		return common.ErrContentUnsupported
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	frame, err := envelope.Seal(e.sealKey(ctx, t), payload)
	if err != nil {
		return err
	}
	if err := t.Send(ctx, frame); err != nil {
		e.reportError(ctx, t, "SEND_FAIL", err.Error())
		return err
	}
	return nil
}

// sealKey returns the transport's session key, or the device-bound local
// key when no session exists.
func (e *Engine) sealKey(ctx context.Context, t transport.Transport) []byte {
	if key := t.SessionKey(); key != nil {
		return key
	}
	e.log.Warn(ctx, "no session key, using device-bound local key")
	return e.localKey
}

// HandleInbound runs the inbound pipeline for one encrypted envelope from t.
func (e *Engine) HandleInbound(ctx context.Context, t transport.Transport, raw []byte) {
	text, err := envelope.OpenText(e.sealKey(ctx, t), string(raw))
	if err != nil {
		if errors.Is(err, common.ErrDecryptAuth) {
			e.log.Error(ctx, "inbound frame failed authentication")
			e.reportError(ctx, t, "DECRYPT_AUTH", "payload authentication failed")
			return
		}
		e.log.Warn(ctx, "dropping malformed inbound frame", "error", err)
		return
	}

	var item models.ClipboardItem
	if err := json.Unmarshal([]byte(text), &item); err != nil {
		e.log.Warn(ctx, "dropping undecodable inbound item", "error", err)
		return
	}
	if item.ID == "" || item.Content == "" {
		e.log.Warn(ctx, "dropping incomplete inbound item", "id", item.ID)
		return
	}
	if item.TTL <= 0 {
		item.TTL = e.ttlMs
	}

	item.Synced = true
	if err := e.store.Put(ctx, &item); err != nil {
		e.log.Error(ctx, "failed to persist inbound item", "id", item.ID, "error", err)
		e.reportSyncResult(ctx, t, false, item.ID, "persist failed")
		return
	}

	e.deliver(ctx, &item)
	e.reportSyncResult(ctx, t, true, item.ID, "")
}

// deliver applies the foreground/background policy for an inbound item.
func (e *Engine) deliver(ctx context.Context, item *models.ClipboardItem) {
	// Suppression is keyed by the locally computed hash; the peer's hash
	// field is not canonical (the companion emits lowercase hex).
	content := item.Content
	hash := cryptox.Sha256HexUpper([]byte(content))

	if e.platform.Foreground() {
		e.writeAndArm(ctx, content, hash)
		return
	}

	e.mu.Lock()
	if e.debounce != nil {
		e.debounce.Stop()
	}
	e.debounce = time.AfterFunc(NotifyDebounce, func() {
		err := e.platform.Notify(ctx, preview(content), func() {
			e.writeAndArm(ctx, content, hash)
		})
		if err != nil {
			e.log.Warn(ctx, "failed to post notification", "error", err)
		}
	})
	e.mu.Unlock()
}

func (e *Engine) writeAndArm(ctx context.Context, content, hash string) {
	if err := e.platform.WriteLocal(ctx, content); err != nil {
		e.log.Error(ctx, "failed to write local clipboard", "error", err)
		return
	}
	e.arm(hash)
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLimit {
		return content
	}
	return string(runes[:previewLimit]) + "…"
}

// reportError emits an error_report control frame. Best-effort.
func (e *Engine) reportError(ctx context.Context, t transport.Transport, errorType, msg string) {
	frame, err := envelope.EncodeControl(envelope.NewErrorReport(errorType, msg, e.now()))
	if err != nil {
		return
	}
	if err := t.Send(ctx, string(frame)); err != nil {
		e.log.Debug(ctx, "error_report not sent", "error", err)
	}
}

// reportSyncResult emits a clipboard_sync_result control frame. Best-effort.
func (e *Engine) reportSyncResult(ctx context.Context, t transport.Transport, success bool, id, msg string) {
	frame, err := envelope.EncodeControl(envelope.NewSyncResult(success, id, msg, e.now()))
	if err != nil {
		return
	}
	if err := t.Send(ctx, string(frame)); err != nil {
		e.log.Debug(ctx, "clipboard_sync_result not sent", "error", err)
	}
}
