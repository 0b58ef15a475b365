// Package pairing turns a scanned QR payload into a persisted trust anchor
// and kicks off the first transport connection.
package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
	"github.com/dmitrijs2005/appconnect/internal/store/trust"
)

// DialTimeout bounds the reachability probe.
const DialTimeout = 3 * time.Second

// Connector asks the transport to establish a connection to a paired device.
type Connector interface {
	Connect(ctx context.Context, d models.Device) error
}

// Associator triggers the host-OS companion-device association flow, when
// the platform has one. It is informational: trust is already pinned.
type Associator interface {
	Associate(ctx context.Context, d models.Device) error
}

// Manager implements the pairing flow.
type Manager struct {
	trust     trust.Repository
	platform  Associator
	transport Connector
	log       logging.Logger

	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
	now  func() int64
}

// NewManager wires a pairing manager. platform and transport may be nil in
// tests; the corresponding steps are skipped.
func NewManager(trustRepo trust.Repository, platform Associator, transport Connector, log logging.Logger) *Manager {
	return &Manager{
		trust:     trustRepo,
		platform:  platform,
		transport: transport,
		log:       log.With("component", "pairing"),
		dial:      net.DialTimeout,
		now:       func() int64 { return time.Now().UnixMilli() },
	}
}

// Pair decodes qrText, probes the peer, and persists the trust anchor. The
// device row is committed only after the probe succeeds; the association and
// connect steps that follow may fail without invalidating trust.
func (m *Manager) Pair(ctx context.Context, qrText string) (*models.Device, error) {
	payload, err := decodePayload(qrText)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(payload.IP, strconv.Itoa(payload.Port))
	conn, err := m.dial("tcp", addr, DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrUnreachable, addr, err)
	}
	conn.Close()

	device := models.Device{
		ID:                     uuid.NewString(),
		Name:                   payload.Name,
		PublicKey:              payload.PublicKey,
		CertificateFingerprint: payload.Fingerprint,
		LastSeen:               m.now(),
		IsTrusted:              true,
		Endpoint:               addr,
	}
	if err := m.trust.Insert(ctx, &device); err != nil {
		return nil, fmt.Errorf("failed to persist trust anchor: %w", err)
	}
	m.log.Info(ctx, "device paired", "device", device.Name, "fingerprint", device.CertificateFingerprint)

	if m.platform != nil {
		if err := m.platform.Associate(ctx, device); err != nil {
			m.log.Warn(ctx, "companion association failed", "error", err)
		}
	}
	if m.transport != nil {
		if err := m.transport.Connect(ctx, device); err != nil {
			m.log.Warn(ctx, "initial connect failed", "error", err)
		}
	}
	return &device, nil
}

func decodePayload(qrText string) (*models.QrPayload, error) {
	var p models.QrPayload
	if err := json.Unmarshal([]byte(qrText), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrQRMalformed, err)
	}
	if p.Name == "" || p.IP == "" || p.Port == 0 || p.PublicKey == "" || p.Fingerprint == "" {
		return nil, fmt.Errorf("%w: missing required field", common.ErrQRMalformed)
	}
	if !validFingerprint(p.Fingerprint) {
		return nil, fmt.Errorf("%w: bad fingerprint format", common.ErrQRMalformed)
	}
	if _, err := cryptox.ParsePublicKey(p.PublicKey); err != nil {
		return nil, fmt.Errorf("%w: bad public key: %v", common.ErrQRMalformed, err)
	}
	return &p, nil
}

func validFingerprint(fp string) bool {
	rest, ok := strings.CutPrefix(fp, "SHA256:")
	if !ok || len(rest) != 64 {
		return false
	}
	for _, c := range rest {
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
