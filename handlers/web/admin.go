package web

import (
	"flashdeck/handlers/api"
	"flashdeck/models"
	"flashdeck/state"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
)

type AdminHandler struct {
	pages *Pages
}

func NewAdminHandler(pages *Pages) *AdminHandler {
	return &AdminHandler{pages: pages}
}

// ShowSessions mounts the panel and fetches the session list. Access is not
// checked here; the backend refuses non-admins and that error is shown.
func (h *AdminHandler) ShowSessions(c *fiber.Ctx) error {
	panel := api.CurrentSession(c).Views.MountPanel()
	h.refresh(c, panel)
	return h.pages.render(c, "admin", fiber.Map{"Panel": panel.View()})
}

// UpdateRoles replaces the roles of one session with the comma separated
// text entered for it. The text stays in place when the update fails.
func (h *AdminHandler) UpdateRoles(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)
	panel := h.panel(c)
	id := c.Params("id")

	text := c.FormValue("roles")
	panel.SetDraft(id, text)

	if err := sess.Client.UpdateRoles(c.UserContext(), id, utils.ParseLabels(text)); err != nil {
		utils.Log.WithField("session", id).Warn("Role update failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	} else {
		panel.ClearDraft(id)
		h.pages.report(c, models.LevelSuccess, t(c, "notify_roles_updated"))
		h.refresh(c, panel)
	}

	return h.respond(c, panel)
}

// DeleteSession forces one session to log out
func (h *AdminHandler) DeleteSession(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)
	panel := h.panel(c)
	id := c.Params("id")

	if err := sess.Client.DeleteSession(c.UserContext(), id); err != nil {
		utils.Log.WithField("session", id).Warn("Force logout failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	} else {
		panel.ClearDraft(id)
		h.pages.report(c, models.LevelSuccess, t(c, "notify_session_deleted"))
		h.refresh(c, panel)
	}

	return h.respond(c, panel)
}

func (h *AdminHandler) refresh(c *fiber.Ctx, panel *state.Panel) {
	sessions, err := api.CurrentSession(c).Client.ListSessions(c.UserContext())
	if err != nil {
		utils.Log.Warn("Session list fetch failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	}
	panel.Loaded(sessions, err)
}

func (h *AdminHandler) respond(c *fiber.Ctx, panel *state.Panel) error {
	if IsPartial(c) {
		return h.pages.partial(c, "partials/sessions", fiber.Map{"Panel": panel.View()})
	}
	return h.pages.render(c, "admin", fiber.Map{"Panel": panel.View()})
}

func (h *AdminHandler) panel(c *fiber.Ctx) *state.Panel {
	views := api.CurrentSession(c).Views
	if p := views.Panel(); p != nil {
		return p
	}
	p := views.MountPanel()
	h.refresh(c, p)
	return p
}
