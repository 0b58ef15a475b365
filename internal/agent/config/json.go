package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/flagx"
	"github.com/dmitrijs2005/appconnect/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "24h"
// or as integer nanoseconds. After parsing, values are copied into the
// runtime Config.
type JsonConfig struct {
	DatabaseDSN   string         `json:"database_dsn"`
	SecretPath    string         `json:"secret_path"`
	PeerAddr      string         `json:"peer_addr"`
	TTL           timex.Duration `json:"ttl"`
	SweepInterval timex.Duration `json:"sweep_interval"`
	LogLevel      string         `json:"log_level"`
	PreSharedKey  string         `json:"pre_shared_key"`
}

// parseJson overlays Config with values loaded from a JSON file. The file
// path comes from the -c/-config flags; when absent, nothing is loaded.
// Only fields present in the file override the current values. Read and
// unmarshal errors panic, matching the fail-fast startup policy.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.SecretPath != "" {
		cfg.SecretPath = jc.SecretPath
	}
	if jc.PeerAddr != "" {
		cfg.PeerAddr = jc.PeerAddr
	}
	if jc.TTL.Duration != 0 {
		cfg.TTL = time.Duration(jc.TTL.Duration)
	}
	if jc.SweepInterval.Duration != 0 {
		cfg.SweepInterval = time.Duration(jc.SweepInterval.Duration)
	}
	if jc.LogLevel != "" {
		cfg.LogLevel = jc.LogLevel
	}
	if jc.PreSharedKey != "" {
		cfg.PreSharedKey = jc.PreSharedKey
	}
}
