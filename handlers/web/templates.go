package web

import (
	"errors"
	"strings"
	"time"

	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
)

// NewEngine loads the templates under dir with the helper functions the
// pages use. reload re-reads templates on every render (development).
func NewEngine(dir string, reload bool) *html.Engine {
	engine := html.New(dir, ".html")

	engine.AddFunc("join", strings.Join)
	engine.AddFunc("lower", strings.ToLower)
	engine.AddFunc("add", func(a, b int) int { return a + b })
	engine.AddFunc("dict", func(pairs ...interface{}) (map[string]interface{}, error) {
		if len(pairs)%2 != 0 {
			return nil, errors.New("dict needs key/value pairs")
		}
		m := make(map[string]interface{}, len(pairs)/2)
		for i := 0; i < len(pairs); i += 2 {
			key, ok := pairs[i].(string)
			if !ok {
				return nil, errors.New("dict keys must be strings")
			}
			m[key] = pairs[i+1]
		}
		return m, nil
	})

	// i18n template functions
	engine.AddFunc("t", func(lang interface{}, messageID string) string {
		l, _ := lang.(string)
		return utils.T(utils.GetLocalizer(l), messageID)
	})
	engine.AddFunc("tWithData", func(lang interface{}, messageID string, data map[string]interface{}) string {
		l, _ := lang.(string)
		return utils.TWithData(utils.GetLocalizer(l), messageID, data)
	})
	engine.AddFunc("tPlural", func(lang interface{}, messageID string, count int) string {
		l, _ := lang.(string)
		return utils.TPlural(utils.GetLocalizer(l), messageID, count)
	})

	// card faces allow a small inline formatting subset
	engine.AddFunc("cardHTML", utils.CardHTML)

	engine.AddFunc("formatTime", func(s string) string {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return s
		}
		return ts.Local().Format("Jan 02, 2006 15:04")
	})

	engine.Reload(reload)
	return engine
}

// ErrorHandler renders failures as JSON for scripted requests and as the
// error page otherwise
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var fiberErr *fiber.Error
	if appErr, ok := utils.AsAppError(err); ok {
		code = appErr.Code
		message = appErr.Message
		if code >= fiber.StatusInternalServerError {
			utils.Log.Error("Application error: %v", appErr)
		}
	} else if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	} else {
		utils.Log.Error("Unhandled error on %s: %v", c.Path(), err)
		message = t(c, "error_500")
	}

	if IsPartial(c) || strings.HasPrefix(c.Path(), "/api") {
		return c.Status(code).JSON(fiber.Map{
			"error": message,
		})
	}

	return c.Status(code).Render("error", fiber.Map{
		"Error": message,
		"Code":  code,
		"Lang":  c.Locals("lang"),
	})
}
