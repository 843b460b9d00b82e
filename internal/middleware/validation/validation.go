package validation

import (
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var scriptPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=)`)

type Config struct {
	MaxTextLength       int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware enforces content-type and payload limits on write endpoints
// and rejects obviously hostile message content.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxTextLength == 0 {
		cfg.MaxTextLength = 20000
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json", "multipart/form-data"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodPost || c.Method() == fiber.MethodPut {
			contentType := c.Get("Content-Type")
			if contentType != "" && !typeAllowed(contentType, cfg.AllowedContentTypes) {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Type de contenu non pris en charge.",
					"code":  "unsupported_media_type",
				})
			}
			if len(c.Body()) > cfg.MaxDocumentSize {
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
					"error": "La requête dépasse la taille maximale autorisée.",
					"code":  "payload_too_large",
				})
			}
		}

		if strings.Contains(c.Path(), "/chat/session/") && c.Method() == fiber.MethodPost {
			var req map[string]any
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Corps de requête JSON invalide.",
					"code":  "input_invalid",
				})
			}

			content, _ := req["content"].(string)
			if strings.TrimSpace(content) == "" {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Le champ content est requis.",
					"code":  "input_invalid",
				})
			}
			if len(content) > cfg.MaxTextLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Le texte dépasse la longueur maximale autorisée.",
					"code":  "input_invalid",
				})
			}
			if scriptPattern.MatchString(content) {
				cfg.Logger.Warn("hostile message content rejected",
					zap.String("ip", c.IP()))
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Contenu de message invalide.",
					"code":  "input_invalid",
				})
			}
		}

		return c.Next()
	}
}

func typeAllowed(contentType string, allowed []string) bool {
	for _, t := range allowed {
		if strings.Contains(contentType, t) {
			return true
		}
	}
	return false
}
