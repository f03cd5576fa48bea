package web

import (
	"net/url"
	"strings"

	"flashdeck/handlers/api"
	"flashdeck/models"
	"flashdeck/state"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
)

// CardHandler serves the card browser and the creation form
type CardHandler struct {
	pages   *Pages
	metrics *api.Metrics
}

// NewCardHandler creates a card handler
func NewCardHandler(pages *Pages, metrics *api.Metrics) *CardHandler {
	return &CardHandler{pages: pages, metrics: metrics}
}

// ShowView mounts a fresh browser and loads the first list
func (h *CardHandler) ShowView(c *fiber.Ctx) error {
	browser := api.CurrentSession(c).Views.MountBrowser()
	h.load(c, browser, strings.TrimSpace(c.Query("label")))
	return h.pages.render(c, "view", fiber.Map{"Browser": browser.View()})
}

// FilterCards reloads the list for a new filter inside the mounted browser.
// A response overtaken by a newer filter is dropped; scripted callers get 204
// so they keep what they already show.
func (h *CardHandler) FilterCards(c *fiber.Ctx) error {
	browser := h.browser(c)
	if !h.load(c, browser, strings.TrimSpace(c.Query("label"))) && IsPartial(c) {
		return c.SendStatus(fiber.StatusNoContent)
	}

	if IsPartial(c) {
		return h.pages.partial(c, "partials/card_list", fiber.Map{"Browser": browser.View()})
	}
	return h.pages.render(c, "view", fiber.Map{"Browser": browser.View()})
}

// FlipCard toggles the face of one card
func (h *CardHandler) FlipCard(c *fiber.Ctx) error {
	browser := h.browser(c)
	id := c.Params("id")
	flipped := browser.Toggle(id)

	if !IsPartial(c) {
		return c.Redirect(listURL(browser.Filter()))
	}
	card, ok := browser.Card(id)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return h.pages.partial(c, "partials/card", fiber.Map{"Card": card, "Flipped": flipped})
}

// DeleteCard removes a card upstream and from the list
func (h *CardHandler) DeleteCard(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)
	browser := h.browser(c)
	id := c.Params("id")

	if err := sess.Client.DeleteCard(c.UserContext(), id); err != nil {
		utils.Log.WithField("card", id).Warn("Delete failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	} else {
		browser.Remove(id)
		h.pages.report(c, models.LevelSuccess, t(c, "notify_card_deleted"))
	}

	if !IsPartial(c) {
		return c.Redirect(listURL(browser.Filter()))
	}
	return h.pages.partial(c, "partials/card_list", fiber.Map{"Browser": browser.View()})
}

// EditCard saves the fields of one card. Empty fields are left as they are
// upstream; the list shows the edited card once the backend accepted it.
func (h *CardHandler) EditCard(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)
	browser := h.browser(c)
	id := c.Params("id")

	input := models.CardInput{Front: c.FormValue("front"), Back: c.FormValue("back")}
	if labels := utils.ParseLabels(c.FormValue("labels")); len(labels) > 0 {
		input.Labels = labels
	}

	if err := sess.Client.UpdateCard(c.UserContext(), id, input); err != nil {
		utils.Log.WithField("card", id).Warn("Update failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	} else {
		if card, ok := browser.Card(id); ok {
			browser.Replace(applyEdit(card, input))
		}
		h.pages.report(c, models.LevelSuccess, t(c, "notify_card_updated"))
	}

	if !IsPartial(c) {
		return c.Redirect(listURL(browser.Filter()))
	}
	card, ok := browser.Card(id)
	if !ok {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return h.pages.partial(c, "partials/card", fiber.Map{"Card": card, "Flipped": browser.View().Flipped[id]})
}

// ShowCreate renders an empty creation form
func (h *CardHandler) ShowCreate(c *fiber.Ctx) error {
	return h.pages.render(c, "create", fiber.Map{})
}

// HandleCreate submits a new card. Success clears the form; failure keeps
// every field so the user can retry and shows the backend's reason.
func (h *CardHandler) HandleCreate(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)

	front := c.FormValue("front")
	back := c.FormValue("back")
	labels := c.FormValue("labels")

	form := fiber.Map{"Front": front, "Back": back, "Labels": labels}

	// same rule as the form's required attribute: whitespace counts as content
	if front == "" || back == "" {
		form["Error"] = t(c, "create_required")
		return h.createForm(c.Status(fiber.StatusBadRequest), form)
	}

	_, err := sess.Client.CreateCard(c.UserContext(), models.CardInput{
		Front:  front,
		Back:   back,
		Labels: utils.ParseLabels(labels),
	})
	if err != nil {
		form["Error"] = describe(c, err)
		return h.createForm(c.Status(fiber.StatusUnprocessableEntity), form)
	}

	if IsPartial(c) {
		h.pages.notify(c, models.LevelSuccess, t(c, "notify_card_created"))
		return h.pages.partial(c, "partials/create_form", fiber.Map{})
	}
	h.pages.flash(c, models.LevelSuccess, t(c, "notify_card_created"))
	return c.Redirect("/create")
}

func (h *CardHandler) createForm(c *fiber.Ctx, form fiber.Map) error {
	if IsPartial(c) {
		return h.pages.partial(c, "partials/create_form", form)
	}
	return h.pages.render(c, "create", form)
}

// load runs one fetch for filter and reports whether its result landed
func (h *CardHandler) load(c *fiber.Ctx, browser *state.Browser, filter string) bool {
	gen := browser.Begin(filter)
	cards, err := api.CurrentSession(c).Client.ListCards(c.UserContext(), filter)
	if !browser.Finish(gen, cards, err) {
		h.metrics.StaleResponse()
		return false
	}
	if err != nil {
		utils.Log.WithField("label", filter).Warn("Card fetch failed: %v", err)
		h.pages.report(c, models.LevelError, describe(c, err))
	}
	return true
}

// browser returns the mounted browser, mounting one for direct sub-route hits
func (h *CardHandler) browser(c *fiber.Ctx) *state.Browser {
	views := api.CurrentSession(c).Views
	if b := views.Browser(); b != nil {
		return b
	}
	return views.MountBrowser()
}

// applyEdit mirrors what the backend does with a partial update
func applyEdit(card models.Card, input models.CardInput) models.Card {
	if input.Front != "" {
		card.Front = input.Front
	}
	if input.Back != "" {
		card.Back = input.Back
	}
	if input.Labels != nil {
		card.Labels = input.Labels
	}
	return card
}

func listURL(filter string) string {
	if filter == "" {
		return "/view/cards"
	}
	return "/view/cards?label=" + url.QueryEscape(filter)
}
