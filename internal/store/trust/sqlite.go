package trust

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/dbx"
	"github.com/dmitrijs2005/appconnect/internal/models"
)

// SQLiteRepository implements Repository over the paired_devices table with
// a write-through in-memory cache. Reads of the trusted set come from the
// cache under a reader lock, so ListTrusted is safe to call from the TLS
// handshake path.
type SQLiteRepository struct {
	db dbx.DBTX

	mu      sync.RWMutex
	devices map[string]models.Device
}

// NewSQLiteRepository loads the cache from the database and returns the
// repository bound to the given DBTX.
func NewSQLiteRepository(ctx context.Context, db dbx.DBTX) (*SQLiteRepository, error) {
	r := &SQLiteRepository{db: db, devices: make(map[string]models.Device)}
	if err := r.reload(ctx); err != nil {
		return nil, fmt.Errorf("failed to load paired devices: %w", err)
	}
	return r, nil
}

func (r *SQLiteRepository) reload(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, publicKey, certificateFingerprint, lastSeen, isTrusted, fallbackAddress
		 FROM paired_devices`)
	if err != nil {
		return err
	}
	defer rows.Close()

	devices := make(map[string]models.Device)
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return err
		}
		devices[d.ID] = d
	}
	if err := rows.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.devices = devices
	r.mu.Unlock()
	return nil
}

func scanDevice(rows *sql.Rows) (models.Device, error) {
	var d models.Device
	var fallback sql.NullString
	if err := rows.Scan(&d.ID, &d.Name, &d.PublicKey, &d.CertificateFingerprint,
		&d.LastSeen, &d.IsTrusted, &fallback); err != nil {
		return models.Device{}, err
	}
	if fallback.Valid {
		d.FallbackAddress = &fallback.String
	}
	return d, nil
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Insert persists a new device and adds it to the cache.
func (r *SQLiteRepository) Insert(ctx context.Context, d *models.Device) error {
	query := `INSERT INTO paired_devices
		(id, name, publicKey, certificateFingerprint, lastSeen, isTrusted, fallbackAddress)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		d.ID, d.Name, d.PublicKey, d.CertificateFingerprint, d.LastSeen, d.IsTrusted, nullable(d.FallbackAddress))
	if err != nil {
		return fmt.Errorf("failed to insert device: %w", err)
	}

	r.mu.Lock()
	r.devices[d.ID] = *d
	r.mu.Unlock()
	return nil
}

// Update rewrites all mutable fields of an existing device.
func (r *SQLiteRepository) Update(ctx context.Context, d *models.Device) error {
	query := `UPDATE paired_devices
		SET name=?, publicKey=?, certificateFingerprint=?, lastSeen=?, isTrusted=?, fallbackAddress=?
		WHERE id=?`
	res, err := r.db.ExecContext(ctx, query,
		d.Name, d.PublicKey, d.CertificateFingerprint, d.LastSeen, d.IsTrusted, nullable(d.FallbackAddress), d.ID)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return common.ErrNotFound
	}

	r.mu.Lock()
	r.devices[d.ID] = *d
	r.mu.Unlock()
	return nil
}

// Delete removes a device row and evicts it from the cache.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM paired_devices WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}

	r.mu.Lock()
	delete(r.devices, id)
	r.mu.Unlock()
	return nil
}

// GetByID returns a device from the cache.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	out := d
	return &out, nil
}

// List returns all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	return out, nil
}

// ListTrusted returns a snapshot of the devices with IsTrusted set. The
// accept set of the pinning validator is exactly the fingerprints of the
// devices returned here.
func (r *SQLiteRepository) ListTrusted() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		if d.IsTrusted {
			out = append(out, d)
		}
	}
	return out
}

// Touch updates a device's lastSeen timestamp.
func (r *SQLiteRepository) Touch(ctx context.Context, id string, ts int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE paired_devices SET lastSeen=? WHERE id=?`, ts, id)
	if err != nil {
		return fmt.Errorf("failed to touch device: %w", err)
	}
	if ra, err := res.RowsAffected(); err == nil && ra == 0 {
		return common.ErrNotFound
	}

	r.mu.Lock()
	if d, ok := r.devices[id]; ok {
		d.LastSeen = ts
		r.devices[id] = d
	}
	r.mu.Unlock()
	return nil
}

var _ Repository = (*SQLiteRepository)(nil)
