package clipboard

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/dbx"
	"github.com/dmitrijs2005/appconnect/internal/envelope"
	"github.com/dmitrijs2005/appconnect/internal/models"
)

// SQLiteRepository implements Repository over the clipboard_items table.
// The content column stores the envelope-codec textual form sealed with the
// at-rest key; plaintext never touches disk.
type SQLiteRepository struct {
	db     dbx.DBTX
	atRest []byte

	mu      sync.Mutex
	nextSub int
	subs    map[int]chan struct{}
}

// NewSQLiteRepository returns a repository bound to the given DBTX, sealing
// content with atRestKey.
func NewSQLiteRepository(db dbx.DBTX, atRestKey []byte) *SQLiteRepository {
	return &SQLiteRepository{
		db:     db,
		atRest: append([]byte(nil), atRestKey...),
		subs:   make(map[int]chan struct{}),
	}
}

// notify wakes every subscriber without ever blocking a writer.
func (r *SQLiteRepository) notify() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (r *SQLiteRepository) subscribe(ctx context.Context) <-chan struct{} {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	ch := make(chan struct{}, 1)
	r.subs[id] = ch
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}()
	return ch
}

// Put upserts an item by id.
func (r *SQLiteRepository) Put(ctx context.Context, item *models.ClipboardItem) error {
	sealed, err := envelope.SealText(r.atRest, item.Content)
	if err != nil {
		return fmt.Errorf("failed to seal content: %w", err)
	}

	query := `INSERT INTO clipboard_items
		(id, content, contentType, timestamp, ttl, synced, sourceDeviceId, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET content = excluded.content,
			contentType = excluded.contentType,
			timestamp = excluded.timestamp,
			ttl = excluded.ttl,
			synced = excluded.synced,
			sourceDeviceId = excluded.sourceDeviceId,
			hash = excluded.hash`
	_, err = r.db.ExecContext(ctx, query,
		item.ID, sealed, string(item.ContentType), item.Timestamp, item.TTL,
		item.Synced, nullable(item.SourceDeviceID), item.Hash)
	if err != nil {
		return fmt.Errorf("failed to upsert clipboard item: %w", err)
	}

	r.notify()
	return nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Get returns an item by id with its content opened. A row whose content no
// longer decrypts comes back with DecryptionFailedPlaceholder, not an error.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.ClipboardItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, content, contentType, timestamp, ttl, synced, sourceDeviceId, hash
		 FROM clipboard_items WHERE id=?`, id)

	item, err := r.scanItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read clipboard item: %w", err)
	}
	return item, nil
}

func (r *SQLiteRepository) scanItem(scan func(dest ...any) error) (*models.ClipboardItem, error) {
	var item models.ClipboardItem
	var sealed string
	var contentType string
	var source sql.NullString
	if err := scan(&item.ID, &sealed, &contentType, &item.Timestamp, &item.TTL,
		&item.Synced, &source, &item.Hash); err != nil {
		return nil, err
	}
	item.ContentType = models.ContentType(contentType)
	if source.Valid {
		item.SourceDeviceID = &source.String
	}

	content, err := envelope.OpenText(r.atRest, sealed)
	if err != nil {
		item.Content = DecryptionFailedPlaceholder
	} else {
		item.Content = content
	}
	return &item, nil
}

func (r *SQLiteRepository) list(ctx context.Context, where, order string) ([]models.ClipboardItem, error) {
	query := `SELECT id, content, contentType, timestamp, ttl, synced, sourceDeviceId, hash
		 FROM clipboard_items ` + where + ` ORDER BY ` + order
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select clipboard items: %w", err)
	}
	defer rows.Close()

	var result []models.ClipboardItem
	for rows.Next() {
		item, err := r.scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListUnsynced returns the synced=false items, oldest first.
func (r *SQLiteRepository) ListUnsynced(ctx context.Context) ([]models.ClipboardItem, error) {
	return r.list(ctx, "WHERE synced=0", "timestamp ASC")
}

func (r *SQLiteRepository) stream(ctx context.Context, query func() ([]models.ClipboardItem, error)) <-chan []models.ClipboardItem {
	out := make(chan []models.ClipboardItem, 1)
	changes := r.subscribe(ctx)

	emit := func() {
		items, err := query()
		if err != nil {
			return
		}
		select {
		case out <- items:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(out)
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changes:
				emit()
			}
		}
	}()
	return out
}

// Items emits a timestamp-descending snapshot on subscription and after
// every change.
func (r *SQLiteRepository) Items(ctx context.Context) <-chan []models.ClipboardItem {
	return r.stream(ctx, func() ([]models.ClipboardItem, error) {
		return r.list(ctx, "", "timestamp DESC")
	})
}

// Unsynced emits the pending items, oldest first, on subscription and after
// every change.
func (r *SQLiteRepository) Unsynced(ctx context.Context) <-chan []models.ClipboardItem {
	return r.stream(ctx, func() ([]models.ClipboardItem, error) {
		return r.ListUnsynced(ctx)
	})
}

// MarkSynced flips an item's synced flag.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE clipboard_items SET synced=1 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark synced: %w", err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return common.ErrNotFound
	}

	r.notify()
	return nil
}

// Delete removes an item.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM clipboard_items WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete clipboard item: %w", err)
	}

	r.notify()
	return nil
}

// Sweep deletes items whose absolute expiry precedes nowMs and returns the
// count removed.
func (r *SQLiteRepository) Sweep(ctx context.Context, nowMs int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clipboard_items WHERE timestamp + ttl < ?`, nowMs)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep clipboard items: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if count > 0 {
		r.notify()
	}
	return count, nil
}

var _ Repository = (*SQLiteRepository)(nil)
