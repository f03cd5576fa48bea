package api

import (
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"
)

// clientMessages are the strings assets/app.js shows without a page render
var clientMessages = []string{
	"notify_network_error",
	"notify_stream_lost",
	"confirm_delete_card",
	"confirm_force_logout",
	"study_loading",
	"error_404",
	"error_500",
}

// I18nHandler handles i18n-related requests
type I18nHandler struct{}

// GetTranslations returns translations for the client-side JavaScript
func (h *I18nHandler) GetTranslations(c *fiber.Ctx) error {
	lang := c.Params("lang")

	supported := false
	for _, tag := range utils.SupportedLanguages {
		if tag.String() == lang {
			supported = true
			break
		}
	}
	if !supported {
		lang = language.English.String()
	}

	localizer := utils.GetLocalizer(lang)

	translations := make(map[string]string, len(clientMessages))
	for _, id := range clientMessages {
		translations[id] = utils.T(localizer, id)
	}

	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.JSON(translations)
}
