package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/plume-ai/backend/internal/backend"
	"github.com/plume-ai/backend/internal/session"
)

type HealthHandler struct {
	backends *backend.Registry
	sessions *session.Store
}

func NewHealthHandler(backends *backend.Registry, sessions *session.Store) *HealthHandler {
	return &HealthHandler{backends: backends, sessions: sessions}
}

// Health is the liveness probe.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// Ready answers 200 only when at least one generative backend is ready and
// session storage is reachable.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if !h.backends.HasReadyGenerative(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"reason": "no generative backend ready",
		})
	}
	if err := h.sessions.Ping(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"reason": "session storage unreachable",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Backends lists every backend descriptor with its current health.
func (h *HealthHandler) Backends(c *fiber.Ctx) error {
	descriptors := h.backends.List()
	out := make([]fiber.Map, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, fiber.Map{
			"id":           d.ID,
			"kind":         d.Kind,
			"capabilities": d.Capabilities,
			"health":       d.Health,
			"endpoint":     d.Endpoint,
			"models":       d.Models,
		})
	}
	return c.JSON(fiber.Map{"backends": out})
}
