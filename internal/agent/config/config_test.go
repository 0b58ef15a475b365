package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/appconnect/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "appconnect.db", c.DatabaseDSN)
	assert.Equal(t, "appconnect.secret", c.SecretPath)
	assert.Empty(t, c.PeerAddr)
	assert.Equal(t, time.Duration(models.DefaultTTLMs)*time.Millisecond, c.TTL)
	assert.Equal(t, 24*time.Hour, c.SweepInterval)
	assert.Equal(t, "info", c.LogLevel)
	assert.Empty(t, c.PreSharedKey)
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	cfg := LoadConfig()

	require.NotNil(t, cfg, "LoadConfig must not return nil")
	assert.Equal(t, "appconnect.db", cfg.DatabaseDSN)
	assert.Equal(t, "info", cfg.LogLevel)
}
