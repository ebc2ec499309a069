// Package app holds process-wide state for the gateway.
package app

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/rebble-dev/asr-gateway/internal/config"
	"github.com/rebble-dev/asr-gateway/internal/observability/logging"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
}

// New constructs a new Application from the provided configuration and
// initializes the global logger.
func New(cfg *config.Config) *Application {
	logging.Init(logging.Config{
		Debug:   cfg.Observability.Debug,
		Console: cfg.Observability.Env == "dev",
		Service: "asr-gateway",
	})

	a := &Application{
		Cfg:    cfg,
		Logger: logging.WithComponent("application"),
	}

	a.Logger.Info().
		Bool("debug", cfg.Observability.Debug).
		Str("environment", cfg.Observability.Env).
		Str("provider", cfg.ASR.Provider).
		Msg("ASR gateway application created")
	if cfg.Observability.Debug {
		a.Logger.Debug().Msg("Debug mode enabled")
	}
	return a
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() {
	a.StartupTime = time.Now().UTC()
	a.Logger.Info().
		Time("startupTime", a.StartupTime).
		Msg("ASR gateway starting")
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	a.Logger.Info().Msg("ASR gateway shutting down")
}
