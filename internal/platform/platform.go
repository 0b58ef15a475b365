// Package platform is the thin boundary to the host OS: clipboard events,
// clipboard writes, companion-device association, notifications, and
// foreground detection. The core never touches the OS directly.
package platform

import (
	"context"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// Adapter is the host-OS surface the sync engine drives. A concrete
// implementation wraps the platform clipboard and notification APIs; the
// fake below backs tests and the dev binary.
type Adapter interface {
	// Changes emits the clipboard text after every user-initiated local
	// change, until ctx is done.
	Changes(ctx context.Context) <-chan string

	// WriteLocal replaces the local clipboard content.
	WriteLocal(ctx context.Context, text string) error

	// Associate triggers the host-OS companion-device flow, when one
	// exists. Informational; the trust anchor is already pinned.
	Associate(ctx context.Context, d models.Device) error

	// Notify surfaces a notification with a content preview and a Copy
	// action. onCopy runs when the user triggers the action.
	Notify(ctx context.Context, preview string, onCopy func()) error

	// Foreground reports whether the application is foreground-visible.
	Foreground() bool
}
