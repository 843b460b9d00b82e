package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/internal/preferences"
)

type FeedbackHandler struct {
	prefs *preferences.Store
}

func NewFeedbackHandler(prefs *preferences.Store) *FeedbackHandler {
	return &FeedbackHandler{prefs: prefs}
}

type feedbackRequest struct {
	TurnID    string         `json:"turn_id"`
	UserID    string         `json:"user_id"`
	Task      string         `json:"task"`
	Kind      string         `json:"kind"`
	Rating    float64        `json:"rating"`
	Comment   string         `json:"comment"`
	Params    map[string]any `json:"params"`
	BackendID string         `json:"backend_id"`
}

// HandleFeedback records one feedback signal.
func (h *FeedbackHandler) HandleFeedback(c *fiber.Ctx) error {
	var req feedbackRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Corps de requête invalide.",
			"code":  "input_invalid",
		})
	}
	if req.UserID == "" || req.Task == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Les champs user_id et task sont requis.",
			"code":  "input_invalid",
		})
	}

	kind := preferences.FeedbackKind(req.Kind)
	switch kind {
	case preferences.KindPositive, preferences.KindNegative:
	case preferences.KindRating:
		if req.Rating < 1 || req.Rating > 5 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "La note doit être comprise entre 1 et 5.",
				"code":  "input_invalid",
			})
		}
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Type de retour inconnu.",
			"code":  "input_invalid",
		})
	}

	record := h.prefs.RecordFeedback(preferences.Feedback{
		UserID:    req.UserID,
		Task:      req.Task,
		Kind:      kind,
		Rating:    req.Rating,
		Comment:   req.Comment,
		Params:    req.Params,
		BackendID: req.BackendID,
	})
	metrics.FeedbackRecorded.WithLabelValues(string(kind)).Inc()

	return c.Status(fiber.StatusCreated).JSON(record)
}

// GetStats summarizes recorded feedback.
func (h *FeedbackHandler) GetStats(c *fiber.Ctx) error {
	stats := h.prefs.StatsFor(c.Query("user_id"), c.Query("task"))
	return c.JSON(stats)
}
