// Package pinning builds TLS configs that replace chain verification with
// certificate fingerprint pinning against the paired-device trust set.
package pinning

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/dmitrijs2005/appconnect/internal/common"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/models"
)

// TrustSource yields the current trusted-device snapshot. It is called from
// inside the TLS handshake and must not block.
type TrustSource interface {
	ListTrusted() []models.Device
}

// TLSConfig returns a config that accepts a peer iff the SHA-256 fingerprint
// of its leaf certificate matches a trusted device. Chain and hostname
// verification are disabled on purpose: pairing distributes self-signed
// certificates, so the fingerprint pin is the entire trust decision.
func TLSConfig(trust TrustSource) *tls.Config {
	return &tls.Config{
		MinVersion:            tls.VersionTLS12,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verifier(trust),
	}
}

func verifier(trust TrustSource) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("%w: peer presented no certificate", common.ErrCertUntrusted)
		}

		fp := cryptox.CertFingerprint(rawCerts[0])
		for _, d := range trust.ListTrusted() {
			if d.CertificateFingerprint == fp {
				return nil
			}
		}
		return fmt.Errorf("%w: fingerprint %s not pinned", common.ErrCertUntrusted, fp)
	}
}
