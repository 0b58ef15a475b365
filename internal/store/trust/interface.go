// Package trust persists the trusted peers established at pairing time and
// serves the synchronous trusted-set view the TLS pinning validator needs.
package trust

import (
	"context"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// Repository describes CRUD and query operations for trusted Device rows.
// Implementations must serve ListTrusted without blocking: the pinning
// validator calls it from the middle of a TLS handshake.
type Repository interface {
	// Insert persists a new device.
	Insert(ctx context.Context, d *models.Device) error

	// Update rewrites all mutable fields of an existing device.
	Update(ctx context.Context, d *models.Device) error

	// Delete removes a device (explicit unpair).
	Delete(ctx context.Context, id string) error

	// GetByID returns a device by its identifier.
	GetByID(ctx context.Context, id string) (*models.Device, error)

	// List returns all devices, trusted or not.
	List(ctx context.Context) ([]models.Device, error)

	// ListTrusted returns the devices with IsTrusted set. It never blocks
	// and never fails; the result is a snapshot.
	ListTrusted() []models.Device

	// Touch updates a device's lastSeen timestamp.
	Touch(ctx context.Context, id string, ts int64) error
}
