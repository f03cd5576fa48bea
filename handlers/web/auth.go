// handlers/web/auth.go
package web

import (
	"strings"

	"flashdeck/handlers/api"
	"flashdeck/models"
	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	pages *Pages
}

// NewAuthHandler creates a new instance of AuthHandler
func NewAuthHandler(pages *Pages) *AuthHandler {
	return &AuthHandler{pages: pages}
}

// ShowLogin renders the login page
func (h *AuthHandler) ShowLogin(c *fiber.Ctx) error {
	return h.pages.render(c, "login", fiber.Map{})
}

// HandleLogin processes the login form. On success the returned user becomes
// the session identity and the visitor lands on the study page.
func (h *AuthHandler) HandleLogin(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)

	email := strings.TrimSpace(c.FormValue("email"))
	password := c.FormValue("password")

	if email == "" || password == "" {
		return h.pages.render(c.Status(fiber.StatusBadRequest), "login", fiber.Map{
			"Error": t(c, "login_required"),
			"Email": email,
		})
	}

	user, err := sess.Client.Login(c.UserContext(), email, password)
	if err != nil {
		utils.Log.WithField("email", email).Info("Login failed: %v", err)
		return h.pages.render(c.Status(fiber.StatusUnauthorized), "login", fiber.Map{
			"Error": describe(c, err),
			"Email": email,
		})
	}

	sess.Views.Auth.Set(user)
	utils.Log.WithField("email", user.Email).Info("User logged in")

	h.pages.flash(c, models.LevelSuccess, t(c, "notify_logged_in"))
	return c.Redirect("/study")
}

// HandleLogout ends the backend session. A failed logout leaves the identity
// untouched and sends the visitor back where they came from.
func (h *AuthHandler) HandleLogout(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)

	if err := sess.Client.Logout(c.UserContext()); err != nil {
		utils.Log.Warn("Logout failed: %v", err)
		h.pages.flash(c, models.LevelError, describe(c, err))
		return c.RedirectBack("/")
	}

	sess.Restart()
	return c.Redirect("/")
}

// ShowUnlock renders the password-only unlock page
func (h *AuthHandler) ShowUnlock(c *fiber.Ctx) error {
	return h.pages.render(c, "unlock", fiber.Map{})
}

// HandleUnlock submits the unlock password and reports the outcome
func (h *AuthHandler) HandleUnlock(c *fiber.Ctx) error {
	sess := api.CurrentSession(c)

	password := c.FormValue("password")
	if password == "" {
		return h.pages.render(c.Status(fiber.StatusBadRequest), "unlock", fiber.Map{
			"Error": t(c, "unlock_required"),
		})
	}

	if err := sess.Client.Unlock(c.UserContext(), password); err != nil {
		return h.pages.render(c.Status(fiber.StatusUnauthorized), "unlock", fiber.Map{
			"Error": describe(c, err),
		})
	}

	h.pages.flash(c, models.LevelSuccess, t(c, "notify_unlocked"))
	return c.Redirect("/unlock")
}
