package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func errorStatus(c *fiber.Ctx, err error) error {
	if appErr, ok := err.(*utils.AppError); ok {
		return c.Status(appErr.Code).SendString(appErr.Message)
	}
	return fiber.DefaultErrorHandler(c, err)
}

func csrfApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: errorStatus})
	app.Use(CSRFProtection())
	app.Get("/form", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("csrf").(string))
	})
	app.Post("/form", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestCSRFIssuesTokenOnGet(t *testing.T) {
	app := csrfApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/form", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)

	var cookie *http.Cookie
	for _, ck := range resp.Cookies() {
		if ck.Name == "csrf_token" {
			cookie = ck
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, cookie.Value, string(body))
}

func TestCSRFChecksUnsafeMethods(t *testing.T) {
	app := csrfApp()

	tests := []struct {
		name   string
		cookie string
		header string
		form   string
		want   int
	}{
		{"missing", "", "", "", http.StatusForbidden},
		{"mismatch", "abc", "xyz", "", http.StatusForbidden},
		{"header", "abc", "abc", "", http.StatusOK},
		{"form field", "abc", "", "abc", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := url.Values{}
			if tt.form != "" {
				form.Set("_csrf", tt.form)
			}
			req := httptest.NewRequest(http.MethodPost, "/form", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "csrf_token", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestMatchLanguage(t *testing.T) {
	tests := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"ja"}, "ja"},
		{[]string{"ja-JP,ja;q=0.9,en;q=0.8"}, "ja"},
		{[]string{"fr-FR"}, "en"},
		{[]string{"fr", "ja"}, "ja"},
		{[]string{"!!!", "en-GB"}, "en"},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.prefs, "|"), func(t *testing.T) {
			assert.Equal(t, tt.want, MatchLanguage(tt.prefs...))
		})
	}
}

func TestLocaleMiddlewareRemembersQuery(t *testing.T) {
	app := fiber.New()
	app.Use(LocaleMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("lang").(string))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/?lang=ja", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ja", string(body))

	found := false
	for _, ck := range resp.Cookies() {
		if ck.Name == "lang" && ck.Value == "ja" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"), "limits are per client")

	rl.cleanup(time.Now().Add(11 * time.Minute))
	assert.True(t, rl.Allow("1.2.3.4"), "idle clients start over")
}

func TestRateLimiterHandler(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	app := fiber.New(fiber.Config{ErrorHandler: errorStatus})
	app.Use(rl.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
