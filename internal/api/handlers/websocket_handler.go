package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/orchestrator"
	"github.com/plume-ai/backend/internal/session"
	"github.com/plume-ai/backend/pkg/logger"
)

type WebSocketHandler struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Store
}

func NewWebSocketHandler(orch *orchestrator.Orchestrator, sessions *session.Store) *WebSocketHandler {
	return &WebSocketHandler{orch: orch, sessions: sessions}
}

type wsMessage struct {
	SessionID string               `json:"session_id"`
	Request   orchestrator.Request `json:"request"`
}

// HandleConnection serves one chat websocket: each incoming message runs a
// task and streams the result as delta events terminated by a done event.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("websocket connection established")
	defer func() {
		c.Close()
		logger.Info("websocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("failed to read websocket message", zap.Error(err))
			}
			return
		}

		if err := h.streamTask(c, msg); err != nil {
			h.sendError(c, err)
		}
	}
}

func (h *WebSocketHandler) streamTask(c *websocket.Conn, msg wsMessage) error {
	ctx := context.Background()

	userTurnID := ""
	if msg.SessionID != "" {
		id, err := h.sessions.AppendTurn(ctx, msg.SessionID, session.RoleUser, msg.Request.Text, &session.Metadata{TaskType: msg.Request.Task})
		if err != nil {
			logger.Error("failed to append user turn", zap.Error(err))
		} else {
			userTurnID = id
		}
	}

	var envelope any
	var err error
	streamed := false
	if msg.Request.Task == orchestrator.TaskAnswer {
		envelope, err = h.orch.AnswerStream(ctx, orchestrator.AnswerRequest{
			Question:        msg.Request.Text,
			UserID:          msg.Request.UserID,
			ExplicitContext: msg.Request.ExplicitContext,
			ForceWeb:        msg.Request.ForceWeb,
		}, func(delta string) {
			streamed = true
			if werr := c.WriteJSON(map[string]any{
				"type": "delta",
				"text": delta,
			}); werr != nil {
				logger.Warn("failed to write websocket delta", zap.Error(werr))
			}
		})
	} else {
		envelope, err = h.orch.Dispatch(ctx, msg.Request)
	}
	if err != nil {
		if userTurnID != "" {
			if derr := h.sessions.DeleteTurn(ctx, msg.SessionID, userTurnID); derr != nil {
				logger.Warn("failed to roll back user turn", zap.Error(derr))
			}
		}
		return err
	}

	text, backendID, confidence, sources := envelopeSummary(envelope)

	// Non-answer tasks and non-streaming fallbacks still replay the final
	// text so clients see the same event shape.
	if !streamed {
		for _, word := range strings.Fields(text) {
			if err := c.WriteJSON(map[string]any{
				"type": "delta",
				"text": word + " ",
			}); err != nil {
				return err
			}
		}
	}

	turnID := ""
	if msg.SessionID != "" {
		turnID, err = h.sessions.AppendTurn(ctx, msg.SessionID, session.RoleAssistant, text, &session.Metadata{
			TaskType:   msg.Request.Task,
			BackendID:  backendID,
			Confidence: confidence,
			Sources:    sources,
		})
		if err != nil {
			logger.Error("failed to append assistant turn", zap.Error(err))
		}
	}

	return c.WriteJSON(map[string]any{
		"type":    "done",
		"turn_id": turnID,
		"metadata": map[string]any{
			"task":       msg.Request.Task,
			"backend":    backendID,
			"confidence": confidence,
			"envelope":   envelope,
		},
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, err error) {
	payload := map[string]any{
		"type":  "error",
		"error": "Une erreur interne est survenue.",
		"code":  "internal_error",
	}
	var taskErr *orchestrator.TaskError
	if errors.As(err, &taskErr) {
		payload["error"] = taskErr.Message
		payload["code"] = taskErr.Code
	}
	if werr := c.WriteJSON(payload); werr != nil {
		logger.Warn("failed to send websocket error", zap.Error(werr))
	}
}
