package mgmt

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/plan-agent/internal/errors"
	"github.com/p-blackswan/plan-agent/internal/feedback"
	"github.com/p-blackswan/plan-agent/internal/health"
	"github.com/p-blackswan/plan-agent/internal/integrity"
	"github.com/p-blackswan/plan-agent/internal/lock"
	"github.com/p-blackswan/plan-agent/internal/metrics"
	"github.com/p-blackswan/plan-agent/internal/plan"
	"github.com/p-blackswan/plan-agent/internal/status"
)

// Handlers holds dependencies for the read-only diagnostics handlers. Every
// plan endpoint loads a fresh snapshot; nothing here takes the plan lock.
type Handlers struct {
	loader    *plan.Loader
	lockMgr   *lock.Manager
	feedback  *feedback.Manager
	stuck     *feedback.StuckManager
	checker   *health.Checker
	collector *metrics.Metrics
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	loader *plan.Loader,
	lockMgr *lock.Manager,
	fb *feedback.Manager,
	stuck *feedback.StuckManager,
	checker *health.Checker,
	collector *metrics.Metrics,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		loader:    loader,
		lockMgr:   lockMgr,
		feedback:  fb,
		stuck:     stuck,
		checker:   checker,
		collector: collector,
		logger:    logger.With().Str("component", "mgmt.handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "ok",
		Uptime: time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())
	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}
	body := fiber.Map{"checks": results}
	if !ready {
		body["status"] = "not_ready"
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "ready"
	return c.JSON(body)
}

// GetLock handles GET /api/v1/lock.
func (h *Handlers) GetLock(c *fiber.Ctx) error {
	l, err := h.lockMgr.Read(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	if l == nil {
		return c.JSON(LockResponse{Held: false})
	}
	expired := l.Expired(time.Now())
	return c.JSON(LockResponse{Held: !expired, Expired: expired, Lock: l})
}

// GetProject handles GET /api/v1/project.
func (h *Handlers) GetProject(c *fiber.Ctx) error {
	snap, err := h.loader.Load(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(ProjectResponse{
		Project:    snap.Project,
		Milestones: snap.Milestones,
		AsOf:       time.Now().UTC(),
	})
}

// GetIntegrity handles GET /api/v1/integrity. The findings gauge tracks the
// most recently served report.
func (h *Handlers) GetIntegrity(c *fiber.Ctx) error {
	snap, err := h.loader.Load(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	report := integrity.Validate(snap)
	if h.collector != nil {
		h.collector.SetFindings(report.Errors(), report.Warnings())
	}
	return c.JSON(report)
}

// GetCoverage handles GET /api/v1/coverage.
func (h *Handlers) GetCoverage(c *fiber.Ctx) error {
	snap, err := h.loader.Load(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	coverage := integrity.Coverage(snap)
	if h.collector != nil {
		for _, ec := range coverage {
			h.collector.SetCoverage(ec.EpicID, ec.Percent)
		}
	}
	return c.JSON(coverage)
}

// GetStatus handles GET /api/v1/status.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	snap, err := h.loader.Load(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	return c.JSON(status.ForProject(snap))
}

// ListFeedback handles GET /api/v1/feedback.
func (h *Handlers) ListFeedback(c *fiber.Ctx) error {
	items, err := h.feedback.List(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	if items == nil {
		items = []plan.FeedbackItem{}
	}
	return c.JSON(items)
}

// ListStuck handles GET /api/v1/stuck.
func (h *Handlers) ListStuck(c *fiber.Ctx) error {
	items, err := h.stuck.List(c.Context())
	if err != nil {
		return h.storeError(c, err)
	}
	if items == nil {
		items = []plan.StuckItem{}
	}
	return c.JSON(items)
}

// storeError maps store failures onto problem responses.
func (h *Handlers) storeError(c *fiber.Ctx, err error) error {
	if errors.Is(err, perrors.ErrNotFound) {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", err.Error())
	}
	if errors.Is(err, perrors.ErrValidation) {
		return problemResponse(c, fiber.StatusUnprocessableEntity,
			"invalid_document", "Unprocessable Entity", err.Error())
	}
	h.logger.Error().Err(err).Str("path", c.Path()).Msg("store read failed")
	return problemResponse(c, fiber.StatusBadGateway,
		"store_unavailable", "Bad Gateway", "The document store could not be read")
}
