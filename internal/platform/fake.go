package platform

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// Fake is a channel-backed Adapter for tests and the dev binary.
type Fake struct {
	mu         sync.Mutex
	clipboard  string
	foreground bool
	changes    chan string

	Written     []string
	Associated  []models.Device
	Notified    []string
	pendingCopy func()
}

// NewFake returns a Fake starting in the background state.
func NewFake() *Fake {
	return &Fake{changes: make(chan string, 16)}
}

// EmitChange simulates a user-initiated local clipboard change.
func (f *Fake) EmitChange(text string) {
	f.mu.Lock()
	f.clipboard = text
	f.mu.Unlock()
	f.changes <- text
}

// SetForeground flips the foreground flag.
func (f *Fake) SetForeground(v bool) {
	f.mu.Lock()
	f.foreground = v
	f.mu.Unlock()
}

// Clipboard returns the current fake clipboard content.
func (f *Fake) Clipboard() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clipboard
}

// Notifications returns a snapshot of the posted notification previews.
func (f *Fake) Notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Notified...)
}

// TriggerCopy fires the Copy action of the last notification, if any.
func (f *Fake) TriggerCopy() {
	f.mu.Lock()
	cb := f.pendingCopy
	f.pendingCopy = nil
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (f *Fake) Changes(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case text := <-f.changes:
				select {
				case out <- text:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (f *Fake) WriteLocal(ctx context.Context, text string) error {
	f.mu.Lock()
	f.clipboard = text
	f.Written = append(f.Written, text)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Associate(ctx context.Context, d models.Device) error {
	f.mu.Lock()
	f.Associated = append(f.Associated, d)
	f.mu.Unlock()
	return nil
}

func (f *Fake) Notify(ctx context.Context, preview string, onCopy func()) error {
	f.mu.Lock()
	f.Notified = append(f.Notified, preview)
	f.pendingCopy = onCopy
	f.mu.Unlock()
	return nil
}

func (f *Fake) Foreground() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.foreground
}

var _ Adapter = (*Fake)(nil)
