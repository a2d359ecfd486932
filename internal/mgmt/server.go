// Package mgmt exposes a read-only diagnostics API over the plan store: the
// current lock, integrity findings, requirement coverage, and derived status.
// Mutations stay on the CLI; this server never takes the plan lock.
package mgmt

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/requestid"
)

// ServerConfig holds configuration for the diagnostics server.
type ServerConfig struct {
	ListenAddr string
	Auth       AuthConfig
}

// Server is the diagnostics Fiber application.
type Server struct {
	app    *fiber.App
	logger zerolog.Logger
	config ServerConfig
}

// NewServer creates and configures a diagnostics server around the handlers.
func NewServer(cfg ServerConfig, h *Handlers, collector *metrics.Metrics, logger zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})

	s := &Server{
		app:    app,
		logger: logger.With().Str("component", "mgmt.server").Logger(),
		config: cfg,
	}

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.Middleware())
	app.Use(NewAuthMiddleware(cfg.Auth, logger))
	app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}
		reqID, _ := c.Locals("request_id").(string)
		s.logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Str("request_id", reqID).
			Msg("diagnostics request")
		return c.Next()
	})

	app.Get("/healthz", h.Liveness)
	app.Get("/readyz", h.Readiness)
	if collector != nil {
		app.Get("/metrics", adaptor.HTTPHandler(collector.Handler()))
	}

	v1 := app.Group("/api/v1")
	v1.Get("/lock", h.GetLock)
	v1.Get("/project", h.GetProject)
	v1.Get("/integrity", h.GetIntegrity)
	v1.Get("/coverage", h.GetCoverage)
	v1.Get("/status", h.GetStatus)
	v1.Get("/feedback", h.ListFeedback)
	v1.Get("/stuck", h.ListStuck)

	return s
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8091"
	}
	s.logger.Info().Str("addr", addr).Msg("diagnostics server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("diagnostics server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   err.Error(),
			Instance: c.Path(),
		})
	}
}
