// Package clipboard persists clipboard items with their content sealed
// under the device-bound at-rest key, and exposes the change streams the
// sync engine consumes.
package clipboard

import (
	"context"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// DecryptionFailedPlaceholder is returned as content when a stored item can
// no longer be opened (e.g. the device secret was reset). Stale rows must
// not crash readers; they surface as this marker until swept.
const DecryptionFailedPlaceholder = "[Decryption Failed]"

// Repository describes storage operations for clipboard items.
type Repository interface {
	// Put upserts an item by id. Content is sealed before it is written.
	Put(ctx context.Context, item *models.ClipboardItem) error

	// Get returns an item by id with its content opened.
	Get(ctx context.Context, id string) (*models.ClipboardItem, error)

	// Items emits a snapshot ordered by timestamp descending, once on
	// subscription and again after every change, until ctx is done.
	Items(ctx context.Context) <-chan []models.ClipboardItem

	// Unsynced emits the synced=false items, oldest first, once on
	// subscription and again after every change, until ctx is done.
	Unsynced(ctx context.Context) <-chan []models.ClipboardItem

	// ListUnsynced returns the synced=false items, oldest first.
	ListUnsynced(ctx context.Context) ([]models.ClipboardItem, error)

	// MarkSynced flips an item's synced flag.
	MarkSynced(ctx context.Context, id string) error

	// Delete removes an item.
	Delete(ctx context.Context, id string) error

	// Sweep deletes items whose TTL elapsed before nowMs and returns the
	// number of rows removed.
	Sweep(ctx context.Context, nowMs int64) (int64, error)
}
