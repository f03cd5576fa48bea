package web

import (
	"time"

	"flashdeck/handlers/api"
	"flashdeck/models"
	"flashdeck/state"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
)

// Scheduler runs f once after d
type Scheduler func(d time.Duration, f func())

// AfterFunc schedules on the runtime timer
func AfterFunc(d time.Duration, f func()) {
	time.AfterFunc(d, f)
}

// StudyHandler drives the study state machine of the session
type StudyHandler struct {
	pages    *Pages
	metrics  *api.Metrics
	delay    time.Duration
	schedule Scheduler
}

// NewStudyHandler creates a study handler; delay is the card transition length
func NewStudyHandler(pages *Pages, metrics *api.Metrics, delay time.Duration, schedule Scheduler) *StudyHandler {
	if schedule == nil {
		schedule = AfterFunc
	}
	return &StudyHandler{pages: pages, metrics: metrics, delay: delay, schedule: schedule}
}

// ShowStudy mounts a new machine and loads the deck once. A failed load is
// final for this mount; opening the page again retries.
func (h *StudyHandler) ShowStudy(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)
	study := sess.Views.MountStudy()

	cards, err := sess.Client.ListCards(c.UserContext(), "")
	if err != nil {
		utils.Log.Warn("Study deck fetch failed: %v", err)
		study.Apply(state.Event{Kind: state.EventLoadFailed})
		h.pages.flash(c, models.LevelError, describe(c, err))
	} else {
		study.Apply(state.Event{Kind: state.EventLoaded, Cards: cards})
	}

	return h.pages.render(c, "study", h.data(study.View()))
}

// ShowCard renders the current state without remounting
func (h *StudyHandler) ShowCard(c *fiber.Ctx) error {
	return h.respond(c, h.study(c))
}

// Next moves to the following card
func (h *StudyHandler) Next(c *fiber.Ctx) error {
	return h.navigate(c, state.EventNext)
}

// Prev moves to the preceding card
func (h *StudyHandler) Prev(c *fiber.Ctx) error {
	return h.navigate(c, state.EventPrev)
}

// Swipe maps a horizontal swipe (direction=left|right) to navigation
func (h *StudyHandler) Swipe(c *fiber.Ctx) error {
	kind, ok := state.SwipeEvent(c.FormValue("direction"))
	if !ok {
		return utils.BadRequestError("Unknown swipe direction", nil)
	}
	return h.navigate(c, kind)
}

// Flip turns the current card over
func (h *StudyHandler) Flip(c *fiber.Ctx) error {
	study := h.study(c)
	study.Apply(state.Event{Kind: state.EventFlip})
	return h.respond(c, study)
}

// navigate starts a transition and schedules the settle that ends it.
// Requests arriving mid-transition are dropped by the machine.
func (h *StudyHandler) navigate(c *fiber.Ctx, kind state.EventKind) error {
	study := h.study(c)

	accepted := study.Apply(state.Event{Kind: kind})
	h.metrics.StudyTransition(kind.String(), accepted)

	if accepted {
		id := study.View().Transition
		h.schedule(h.delay, func() {
			study.Apply(state.Event{Kind: state.EventSettle, Transition: id})
		})
	}
	return h.respond(c, study)
}

func (h *StudyHandler) respond(c *fiber.Ctx, study *state.Study) error {
	if IsPartial(c) {
		return h.pages.partial(c, "partials/study_card", h.data(study.View()))
	}
	if c.Method() != fiber.MethodGet {
		return c.Redirect("/study/card")
	}
	return h.pages.render(c, "study", h.data(study.View()))
}

func (h *StudyHandler) data(view state.StudyView) fiber.Map {
	return fiber.Map{
		"Study":    view,
		"SettleMS": h.delay.Milliseconds(),
	}
}

// study returns the mounted machine; a direct hit on a sub-route before any
// mount sees an empty, non-loading machine rather than a stuck one
func (h *StudyHandler) study(c *fiber.Ctx) *state.Study {
	views := api.CurrentSession(c).Views
	if s := views.Study(); s != nil {
		return s
	}
	s := views.MountStudy()
	s.Apply(state.Event{Kind: state.EventLoaded})
	return s
}
