package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/cache"
	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/internal/orchestrator"
	"github.com/plume-ai/backend/internal/session"
	"github.com/plume-ai/backend/pkg/logger"
	"github.com/plume-ai/backend/pkg/utils"
)

const responseCacheTTL = 10 * time.Minute

type MessageHandler struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Store
	cache    cache.Cache
}

func NewMessageHandler(orch *orchestrator.Orchestrator, sessions *session.Store, c cache.Cache) *MessageHandler {
	return &MessageHandler{orch: orch, sessions: sessions, cache: c}
}

type messageRequest struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type"`
	UserID   string `json:"user_id"`
	Metadata struct {
		Style           string `json:"style,omitempty"`
		LengthStyle     string `json:"length_style,omitempty"`
		PlanType        string `json:"plan_type,omitempty"`
		Structure       string `json:"structure,omitempty"`
		ExplicitContext string `json:"context,omitempty"`
		ForceWeb        bool   `json:"force_web,omitempty"`
	} `json:"metadata"`
}

// HandleMessage appends the user turn, dispatches the task, appends the
// assistant turn and returns the envelope.
func (h *MessageHandler) HandleMessage(c *fiber.Ctx) error {
	sessionID := c.Params("id")

	var req messageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Corps de requête invalide.",
			"code":  "input_invalid",
		})
	}
	if req.TaskType == "" {
		req.TaskType = orchestrator.TaskAnswer
	}

	start := time.Now()

	userTurnID, err := h.sessions.AppendTurn(c.Context(), sessionID, session.RoleUser, req.Content, &session.Metadata{TaskType: req.TaskType})
	if err != nil {
		if errors.Is(err, session.ErrRoleOrder) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Un tour assistant est déjà attendu pour cette session.",
				"code":  "input_invalid",
			})
		}
		// best-effort turn durability: the answer is still produced
		logger.Error("failed to append user turn", zap.Error(err))
	}

	dispatchReq := orchestrator.Request{
		Task:            req.TaskType,
		Text:            req.Content,
		UserID:          req.UserID,
		Style:           req.Metadata.Style,
		LengthStyle:     req.Metadata.LengthStyle,
		PlanType:        req.Metadata.PlanType,
		Structure:       req.Metadata.Structure,
		ExplicitContext: req.Metadata.ExplicitContext,
		ForceWeb:        req.Metadata.ForceWeb,
	}

	cacheKey := ""
	if h.cache != nil && req.TaskType == orchestrator.TaskAnswer {
		cacheKey = fmt.Sprintf("%s:%s:%s", req.UserID, req.TaskType, utils.HashString(req.Content))
		var cached orchestrator.AnswerEnvelope
		if hit, err := h.cache.Get(c.Context(), cacheKey, &cached); err == nil && hit {
			metrics.CacheHits.WithLabelValues("response").Inc()
			return h.respond(c, sessionID, req.TaskType, &cached, cached.Answer, cached.Backend, cached.Confidence, sourceLabels(&cached))
		}
		metrics.CacheMisses.WithLabelValues("response").Inc()
	}

	envelope, err := h.orch.Dispatch(c.Context(), dispatchReq)
	metrics.TaskDuration.WithLabelValues(req.TaskType).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TaskTotal.WithLabelValues(req.TaskType, "error").Inc()
		h.rollbackUserTurn(c.Context(), sessionID, userTurnID)
		var taskErr *orchestrator.TaskError
		if errors.As(err, &taskErr) {
			return c.Status(taskErr.Status).JSON(fiber.Map{
				"error": taskErr.Message,
				"code":  taskErr.Code,
			})
		}
		logger.Error("task dispatch failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Une erreur interne est survenue.",
			"code":  "internal_error",
		})
	}
	metrics.TaskTotal.WithLabelValues(req.TaskType, "ok").Inc()

	text, backendID, confidence, sources := envelopeSummary(envelope)

	if cacheKey != "" {
		if ae, ok := envelope.(*orchestrator.AnswerEnvelope); ok {
			if err := h.cache.Set(c.Context(), cacheKey, ae, responseCacheTTL); err != nil {
				logger.Warn("failed to cache response", zap.Error(err))
			}
		}
	}

	return h.respond(c, sessionID, req.TaskType, envelope, text, backendID, confidence, sources)
}

func (h *MessageHandler) respond(c *fiber.Ctx, sessionID, taskType string, envelope any, text, backendID string, confidence float64, sources []string) error {
	turnID, err := h.sessions.AppendTurn(c.Context(), sessionID, session.RoleAssistant, text, &session.Metadata{
		TaskType:   taskType,
		BackendID:  backendID,
		Confidence: confidence,
		Sources:    sources,
	})
	if err != nil {
		logger.Error("failed to append assistant turn", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"turn_id":   turnID,
		"task_type": taskType,
		"envelope":  envelope,
	})
}

// rollbackUserTurn removes a user turn whose task failed before an assistant
// turn was produced, so a retry on the same session is not rejected for
// breaking role alternation.
func (h *MessageHandler) rollbackUserTurn(ctx context.Context, sessionID, turnID string) {
	if turnID == "" {
		return
	}
	if err := h.sessions.DeleteTurn(ctx, sessionID, turnID); err != nil {
		logger.Warn("failed to roll back user turn",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// GetSession returns the ordered turns of one session.
func (h *MessageHandler) GetSession(c *fiber.Ctx) error {
	turns, err := h.sessions.Turns(c.Context(), c.Params("id"))
	if err != nil {
		logger.Error("failed to load session turns", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Impossible de charger la session.",
			"code":  "storage_error",
		})
	}
	return c.JSON(fiber.Map{"turns": turns})
}

// UpdateSessionTitle renames a session.
func (h *MessageHandler) UpdateSessionTitle(c *fiber.Ctx) error {
	var req struct {
		Title string `json:"title"`
	}
	if err := c.BodyParser(&req); err != nil || req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Le champ title est requis.",
			"code":  "input_invalid",
		})
	}
	if err := h.sessions.UpdateTitle(c.Context(), c.Params("id"), req.Title); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session introuvable.",
				"code":  "not_found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Impossible de renommer la session.",
			"code":  "storage_error",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteSession removes a session and its turns.
func (h *MessageHandler) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.DeleteSession(c.Context(), c.Params("id")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Impossible de supprimer la session.",
			"code":  "storage_error",
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// envelopeSummary extracts the assistant text and annotations from a task
// envelope for turn persistence.
func envelopeSummary(envelope any) (text, backendID string, confidence float64, sources []string) {
	switch e := envelope.(type) {
	case *orchestrator.AnswerEnvelope:
		metrics.ConfidenceScore.Observe(e.Confidence)
		return e.Answer, e.Backend, e.Confidence, sourceLabels(e)
	case *orchestrator.ReformEnvelope:
		return e.Reformulated, e.Backend, 0, nil
	case *orchestrator.CorrectionEnvelope:
		return e.Corrected, e.Backend, 0, nil
	case *orchestrator.SummaryEnvelope:
		return e.Summary, e.Backend, 0, nil
	case *orchestrator.PlanEnvelope:
		return e.FullPlan, e.Backend, 0, nil
	default:
		return "", "", 0, nil
	}
}

func sourceLabels(e *orchestrator.AnswerEnvelope) []string {
	labels := make([]string, 0, len(e.Sources))
	for _, s := range e.Sources {
		if s.Title != "" {
			labels = append(labels, s.Kind+":"+s.Title)
		} else {
			labels = append(labels, s.Kind)
		}
	}
	return labels
}
