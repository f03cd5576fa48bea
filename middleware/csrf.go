package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
)

// CSRFConfig configures the double-submit token check
type CSRFConfig struct {
	TokenLength  int
	CookieName   string
	HeaderName   string // sent by app.js on scripted requests
	FormField    string // hidden field of plain forms
	ContextKey   string // Locals key the templates read the token from
	CookieMaxAge int
	CookieSecure bool

	// Next skips the check when it returns true
	Next func(*fiber.Ctx) bool
}

func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		TokenLength:  32,
		CookieName:   "csrf_token",
		HeaderName:   "X-CSRF-Token",
		FormField:    "_csrf",
		ContextKey:   "csrf",
		CookieMaxAge: 24 * 3600,
	}
}

// CSRFProtection gives every visitor a token cookie and requires unsafe
// requests to echo it in the header or the form field
func CSRFProtection(config ...CSRFConfig) fiber.Handler {
	cfg := DefaultCSRFConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		token := c.Cookies(cfg.CookieName)

		if safeMethod(c.Method()) {
			if token == "" {
				token = issueToken(c, cfg)
			}
			c.Locals(cfg.ContextKey, token)
			return c.Next()
		}

		sent := c.Get(cfg.HeaderName)
		if sent == "" {
			sent = c.FormValue(cfg.FormField)
		}
		switch {
		case token == "" || sent == "":
			return utils.ForbiddenError("CSRF token missing", nil)
		case subtle.ConstantTimeCompare([]byte(token), []byte(sent)) != 1:
			return utils.ForbiddenError("CSRF token mismatch", nil)
		}

		c.Locals(cfg.ContextKey, token)
		return c.Next()
	}
}

func safeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
		return true
	}
	return false
}

func issueToken(c *fiber.Ctx, cfg CSRFConfig) string {
	b := make([]byte, cfg.TokenLength)
	if _, err := rand.Read(b); err != nil {
		utils.Log.Error("Failed to generate CSRF token: %v", err)
		return ""
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	// app.js reads the token from the page, never from the cookie
	c.Cookie(&fiber.Cookie{
		Name:     cfg.CookieName,
		Value:    token,
		MaxAge:   cfg.CookieMaxAge,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Secure:   cfg.CookieSecure,
	})
	return token
}
