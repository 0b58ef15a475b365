package common

const (
	// DefaultPort is the port the PC companion listens on unless the QR
	// payload says otherwise.
	DefaultPort = 8765

	// MDNSServiceType and MDNSAppID identify the companion's discovery
	// advertisement. Discovery results are hints only; trust always comes
	// from the pinned certificate fingerprint.
	MDNSServiceType = "_appconnect._tcp"
	MDNSAppID       = "dev.appconnect"

	// FallbackChannelName is the well-known service identifier of the
	// serial byte-stream channel used by the fallback transport.
	FallbackChannelName = "appconnect-serial"
)
