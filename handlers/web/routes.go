package web

import (
	"time"

	"flashdeck/handlers/api"

	"github.com/gofiber/fiber/v2"
)

// Handlers groups every page handler of the site
type Handlers struct {
	Pages *PageHandler
	Auth  *AuthHandler
	Cards *CardHandler
	Study *StudyHandler
	Admin *AdminHandler
}

// NewHandlers wires the page handlers around one renderer
func NewHandlers(pages *Pages, metrics *api.Metrics, transitionDelay time.Duration, schedule Scheduler) *Handlers {
	return &Handlers{
		Pages: NewPageHandler(pages),
		Auth:  NewAuthHandler(pages),
		Cards: NewCardHandler(pages, metrics),
		Study: NewStudyHandler(pages, metrics, transitionDelay, schedule),
		Admin: NewAdminHandler(pages),
	}
}

// Register mounts the site routes. sessions must be the SessionMiddleware;
// it runs only for these routes. Nothing is gated here: links are hidden
// from visitors who cannot use them and the backend refuses the rest.
// Register must come last since it installs the not-found handler.
func (h *Handlers) Register(r fiber.Router, sessions fiber.Handler) {
	r.Get("/", sessions, h.Pages.Home)

	r.Get("/view", sessions, h.Cards.ShowView)
	r.Get("/view/cards", sessions, h.Cards.FilterCards)
	r.Post("/view/cards/:id/flip", sessions, h.Cards.FlipCard)
	r.Post("/cards/:id/edit", sessions, h.Cards.EditCard)
	r.Post("/cards/:id/delete", sessions, h.Cards.DeleteCard)

	r.Get("/create", sessions, h.Cards.ShowCreate)
	r.Post("/create", sessions, h.Cards.HandleCreate)

	r.Get("/study", sessions, h.Study.ShowStudy)
	r.Get("/study/card", sessions, h.Study.ShowCard)
	r.Post("/study/next", sessions, h.Study.Next)
	r.Post("/study/prev", sessions, h.Study.Prev)
	r.Post("/study/swipe", sessions, h.Study.Swipe)
	r.Post("/study/flip", sessions, h.Study.Flip)

	r.Get("/unlock", sessions, h.Auth.ShowUnlock)
	r.Post("/unlock", sessions, h.Auth.HandleUnlock)
	r.Get("/login", sessions, h.Auth.ShowLogin)
	r.Post("/login", sessions, h.Auth.HandleLogin)
	r.Post("/logout", sessions, h.Auth.HandleLogout)

	r.Get("/admin", sessions, h.Admin.ShowSessions)
	r.Post("/admin/sessions/:id/roles", sessions, h.Admin.UpdateRoles)
	r.Post("/admin/sessions/:id/delete", sessions, h.Admin.DeleteSession)

	r.Use(sessions, h.Pages.NotFound)
}
