// Package agent initializes and runs the clipboard agent: it opens the
// keyring and database, wires the transports, the sync engine, and the
// sweeper, and handles graceful shutdown.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/appconnect/internal/agent/config"
	"github.com/dmitrijs2005/appconnect/internal/cryptox"
	"github.com/dmitrijs2005/appconnect/internal/engine"
	"github.com/dmitrijs2005/appconnect/internal/keyring"
	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/models"
	"github.com/dmitrijs2005/appconnect/internal/pairing"
	"github.com/dmitrijs2005/appconnect/internal/platform"
	"github.com/dmitrijs2005/appconnect/internal/store"
	"github.com/dmitrijs2005/appconnect/internal/transport"
)

// App owns the wired components of a running agent.
type App struct {
	config   *config.Config
	logger   logging.Logger
	repos    *store.Repositories
	primary  *transport.WebSocketClient
	fallback *transport.SerialClient
	engine   *engine.Engine
	sweeper  *engine.Sweeper
	pairer   *pairing.Manager
}

// NewApp builds the agent from configuration. adapter is the host-OS
// boundary; the dev binary passes the channel-backed fake.
func NewApp(ctx context.Context, cfg *config.Config, adapter platform.Adapter) (*App, error) {
	logger := logging.NewDefault(parseLevel(cfg.LogLevel))

	kr, err := keyring.Open(cfg.SecretPath)
	if err != nil {
		return nil, fmt.Errorf("keyring init error: %w", err)
	}

	repos, err := store.InitDatabase(ctx, cfg.DatabaseDSN, kr.Key())
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	var psk []byte
	if cfg.PreSharedKey != "" {
		psk, err = cryptox.DecodeBase64(cfg.PreSharedKey)
		if err != nil || len(psk) != cryptox.KeySize {
			return nil, fmt.Errorf("pre-shared key must be base64 of %d bytes", cryptox.KeySize)
		}
		logger.Warn(ctx, "pre-shared session key configured, handshake disabled")
	}

	primary := transport.NewWebSocketClient(repos.Trust, logger, psk)
	fallback := transport.NewSerialClient(transport.TCPSerialDialer{}, logger)

	deviceID, _ := os.Hostname()
	eng := engine.New(repos.Clipboard, primary, fallback, adapter,
		kr.Key(), deviceID, cfg.TTL.Milliseconds(), logger)
	sweeper := engine.NewSweeper(repos.Clipboard, cfg.SweepInterval, logger)
	pairer := pairing.NewManager(repos.Trust, adapter, primary, logger)

	return &App{
		config:   cfg,
		logger:   logger,
		repos:    repos,
		primary:  primary,
		fallback: fallback,
		engine:   eng,
		sweeper:  sweeper,
		pairer:   pairer,
	}, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Pair runs the pairing flow for a scanned QR payload.
func (app *App) Pair(ctx context.Context, qrText string) (*models.Device, error) {
	return app.pairer.Pair(ctx, qrText)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// reconnect dials the already-paired peer at startup when configuration
// supplies its address.
func (app *App) reconnect(ctx context.Context) {
	if app.config.PeerAddr == "" {
		return
	}
	trusted := app.repos.Trust.ListTrusted()
	if len(trusted) == 0 {
		app.logger.Warn(ctx, "peer address configured but no paired device")
		return
	}
	d := trusted[0]
	d.Endpoint = app.config.PeerAddr
	if err := app.primary.Connect(ctx, d); err != nil {
		app.logger.Error(ctx, "startup connect failed", "error", err)
	}
}

// Run starts the engine and the sweeper and blocks until a signal or ctx
// ends the agent.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting agent")
	app.initSignalHandler(cancelFunc)
	app.reconnect(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.engine.Run(ctx); err != nil {
			app.logger.Error(ctx, "engine stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.sweeper.Run(ctx); err != nil && ctx.Err() == nil {
			app.logger.Error(ctx, "sweeper stopped", "error", err)
		}
	}()

	wg.Wait()

	shutdownCtx := context.Background()
	app.primary.Disconnect(shutdownCtx)
	app.fallback.Disconnect(shutdownCtx)
	if err := app.repos.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}
	app.logger.Info(shutdownCtx, "agent stopped")
}
