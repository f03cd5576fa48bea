package web

import (
	"github.com/gofiber/fiber/v2"
)

// PageHandler serves the pages that carry no state of their own
type PageHandler struct {
	pages *Pages
}

func NewPageHandler(pages *Pages) *PageHandler {
	return &PageHandler{pages: pages}
}

// Home renders the landing page
func (h *PageHandler) Home(c *fiber.Ctx) error {
	return h.pages.render(c, "home", fiber.Map{})
}

// NotFound renders the catch-all page for unknown paths
func (h *PageHandler) NotFound(c *fiber.Ctx) error {
	if IsPartial(c) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": t(c, "error_404"),
		})
	}
	return h.pages.render(c.Status(fiber.StatusNotFound), "error", fiber.Map{
		"Error": t(c, "error_404"),
		"Code":  fiber.StatusNotFound,
	})
}
