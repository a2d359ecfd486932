// Command pland serves the read-only plan diagnostics API: current lock
// state, integrity findings, requirement coverage, derived status, and the
// feedback queues. It never mutates the plan; use the plan CLI for that.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/plan-agent/internal/config"
	"github.com/p-blackswan/plan-agent/internal/feedback"
	"github.com/p-blackswan/plan-agent/internal/health"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/mgmt"
	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/store"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("store_driver", cfg.StoreDriver).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Msg("starting plan diagnostics server")

	var st store.Store
	if cfg.RemoteEnabled() {
		st = store.NewAPIStore(cfg.StoreURL, cfg.StoreAPIKey, logger)
	} else {
		st, err = store.NewDirStore(cfg.StoreRoot, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to open plan directory")
		}
	}

	lockMgr := lock.NewManager(st, cfg.LockLease, logger)
	loader := plan.NewLoader(st, cfg.ExtractCacheSize, logger)
	fb := feedback.NewManager(st, lockMgr, cfg.HolderID(), logger)
	stuck := feedback.NewStuckManager(st, lockMgr, cfg.HolderID(), logger)
	collector := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", health.StoreCheck(st.Exists, plan.KeyProject))

	authMode := "none"
	if cfg.MgmtAPIKey != "" {
		authMode = "api-key"
	}

	handlers := mgmt.NewHandlers(loader, lockMgr, fb, stuck, checker, collector, logger)
	server := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		Auth: mgmt.AuthConfig{
			Mode:   authMode,
			APIKey: cfg.MgmtAPIKey,
		},
	}, handlers, collector, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")
		if err := server.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("diagnostics server shutdown error")
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("diagnostics server error")
		}
	}

	logger.Info().Msg("plan diagnostics server stopped")
}
