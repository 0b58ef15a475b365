package config

import (
	"time"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

// Config holds runtime settings for the clipboard agent.
//
// Fields:
//   - DatabaseDSN: path to the sqlite database file.
//   - SecretPath: path to the device-bound secret used for at-rest sealing.
//   - PeerAddr: host:port of the paired peer, used to reconnect at startup.
//   - TTL: lifetime of a clipboard item.
//   - SweepInterval: how often expired items are removed.
//   - LogLevel: debug, info, warn, or error.
//   - PreSharedKey: base64 32-byte session key that skips the handshake.
//     Dev and test builds only.
type Config struct {
	DatabaseDSN   string
	SecretPath    string
	PeerAddr      string
	TTL           time.Duration
	SweepInterval time.Duration
	LogLevel      string
	PreSharedKey  string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "appconnect.db"
	c.SecretPath = "appconnect.secret"
	c.PeerAddr = ""
	c.TTL = time.Duration(models.DefaultTTLMs) * time.Millisecond
	c.SweepInterval = 24 * time.Hour
	c.LogLevel = "info"
	c.PreSharedKey = ""
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
