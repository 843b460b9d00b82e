package handlers

import (
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plume-ai/backend/internal/cache"
	"github.com/plume-ai/backend/internal/knowledge"
	"github.com/plume-ai/backend/internal/metrics"
	"github.com/plume-ai/backend/pkg/logger"
)

type DocumentHandler struct {
	store *knowledge.Store
	cache cache.Cache
}

func NewDocumentHandler(store *knowledge.Store, c cache.Cache) *DocumentHandler {
	return &DocumentHandler{store: store, cache: c}
}

// UploadDocument ingests a plain-text document for a user. Multipart field
// "file" carries the content; "user_id" scopes ownership.
func (h *DocumentHandler) UploadDocument(c *fiber.Ctx) error {
	userID := c.FormValue("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Le champ user_id est requis.",
			"code":  "input_invalid",
		})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Aucun fichier fourni.",
			"code":  "input_invalid",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Impossible de lire le fichier.",
			"code":  "input_invalid",
		})
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Impossible de lire le fichier.",
			"code":  "input_invalid",
		})
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Le document fourni est vide.",
			"code":  "input_invalid",
		})
	}

	docID := uuid.New().String()
	chunks, err := h.store.AddUserDocument(c.Context(), userID, docID, text, fileHeader.Filename, nil)
	if err != nil {
		logger.Error("document ingestion failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "L'ingestion du document a échoué.",
			"code":  "storage_error",
		})
	}
	metrics.DocumentsIngested.Inc()

	if h.cache != nil {
		if err := h.cache.InvalidateUser(c.Context(), userID); err != nil {
			logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document_id": docID,
		"chunks":      chunks,
	})
}

// DeleteDocument removes every chunk of a user document. Unknown ids are a
// no-op.
func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Le paramètre user_id est requis.",
			"code":  "input_invalid",
		})
	}

	if err := h.store.RemoveUserDocument(c.Context(), userID, c.Params("id")); err != nil {
		logger.Error("document removal failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "La suppression du document a échoué.",
			"code":  "storage_error",
		})
	}

	if h.cache != nil {
		if err := h.cache.InvalidateUser(c.Context(), userID); err != nil {
			logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}
