package models

// Device is a trusted peer record, created at pairing time and owned by the
// trust store.
type Device struct {
	ID        string
	Name      string
	PublicKey string // base64 X.509 SubjectPublicKeyInfo of the peer's RSA key

	// CertificateFingerprint is the pinned TLS leaf fingerprint in the
	// form "SHA256:" + uppercase hex of SHA-256(DER(cert)).
	CertificateFingerprint string

	LastSeen  int64
	IsTrusted bool

	// FallbackAddress identifies the peer on the fallback serial channel,
	// when known.
	FallbackAddress *string

	// Endpoint is the last-known primary dial address (host:port). It is
	// transient: pairing or configuration supplies it, the trust store
	// does not persist it.
	Endpoint string `json:"-"`
}

// QrPayload is the transient pairing payload scanned from the companion's
// QR code. Wire field names are deliberately short.
type QrPayload struct {
	Name        string `json:"n"`
	IP          string `json:"ip"`
	Port        int    `json:"p"`
	PublicKey   string `json:"k"`
	Fingerprint string `json:"fp"`
}
