package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   sqlite database path (default from Config)
//	-s string   device secret path (default from Config)
//	-p string   paired peer address host:port (default from Config)
//	-t int      clipboard item TTL in seconds (default from Config)
//	-l string   log level: debug, info, warn, error (default from Config)
//
// Note: The function filters os.Args to only include the flags it knows
// about, using flagx.FilterArgs, to avoid interference with other
// components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-p", "-t", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "sqlite database path")
	fs.StringVar(&cfg.SecretPath, "s", cfg.SecretPath, "device secret path")
	fs.StringVar(&cfg.PeerAddr, "p", cfg.PeerAddr, "paired peer address (host:port)")
	ttl := fs.Int("t", int(cfg.TTL.Seconds()), "clipboard item TTL (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.TTL = time.Duration(*ttl) * time.Second
}
