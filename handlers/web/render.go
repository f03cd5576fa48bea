// Package web holds the page handlers of the flashcard frontend
package web

import (
	"errors"

	"flashdeck/handlers/api"
	"flashdeck/models"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Notifier delivers a notification to the live connections of a session
type Notifier interface {
	Publish(sessionID string, n models.Notification) int
}

// TicketIssuer signs the notification stream ticket embedded in every page
type TicketIssuer interface {
	Issue(sessionID string) (string, error)
}

// Pages renders full pages and partials with the data every page shares
type Pages struct {
	notifier Notifier
	tickets  TicketIssuer
}

// NewPages creates the shared renderer
func NewPages(notifier Notifier, tickets TicketIssuer) *Pages {
	return &Pages{notifier: notifier, tickets: tickets}
}

// IsPartial reports whether the request came from app.js and expects a fragment
func IsPartial(c *fiber.Ctx) bool {
	return c.Get("HX-Request") != ""
}

// render draws a full page inside the main layout
func (p *Pages) render(c *fiber.Ctx, name string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	sess := api.CurrentSession(c)
	identity := sess.Views.Auth.Identity()

	data["Identity"] = identity
	data["AuthLoading"] = sess.Views.Auth.Loading()
	data["Nav"] = BuildNav(identity, c.Path(), c.Query("menu") == "1")
	data["Flash"] = sess.Views.Drain()
	data["CSRFToken"] = c.Locals("csrf")
	data["Lang"] = c.Locals("lang")
	data["Path"] = c.Path()

	if ticket, err := p.tickets.Issue(sess.ID); err != nil {
		utils.Log.Warn("Failed to issue notification ticket: %v", err)
	} else {
		data["Ticket"] = ticket
	}

	return c.Render(name, data)
}

// partial draws a fragment without the layout
func (p *Pages) partial(c *fiber.Ctx, name string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}
	data["CSRFToken"] = c.Locals("csrf")
	data["Lang"] = c.Locals("lang")
	return c.Render(name, data, "")
}

// notify sends a notification live, or keeps it for the next rendered page
// when no stream is connected
func (p *Pages) notify(c *fiber.Ctx, level, message string) {
	sess := api.CurrentSession(c)
	n := models.Notification{Level: level, Message: message}
	if p.notifier.Publish(sess.ID, n) == 0 {
		sess.Views.Queue(n)
	}
}

// flash keeps a notification for the page the client is redirected to
func (p *Pages) flash(c *fiber.Ctx, level, message string) {
	api.CurrentSession(c).Views.Queue(models.Notification{Level: level, Message: message})
}

// report notifies live for scripted requests and on the next page otherwise
func (p *Pages) report(c *fiber.Ctx, level, message string) {
	if IsPartial(c) {
		p.notify(c, level, message)
		return
	}
	p.flash(c, level, message)
}

// t translates id in the request language
func t(c *fiber.Ctx, id string) string {
	localizer, ok := c.Locals("localizer").(*i18n.Localizer)
	if !ok {
		localizer = utils.Localizer
	}
	return utils.T(localizer, id)
}

// describe turns a backend failure into text for the user. The backend's own
// detail is shown verbatim when there is one.
func describe(c *fiber.Ctx, err error) string {
	var be *api.BackendError
	if errors.As(err, &be) {
		if be.Detail != "" {
			return be.Detail
		}
		return t(c, "notify_backend_error")
	}
	if errors.Is(err, api.ErrMalformed) {
		return t(c, "notify_backend_error")
	}
	return t(c, "notify_network_error")
}
