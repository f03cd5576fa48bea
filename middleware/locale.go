package middleware

import (
	"time"

	"flashdeck/utils"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"
)

const langCookie = "lang"

var matcher = language.NewMatcher(utils.SupportedLanguages)

// LocaleMiddleware detects and sets the user's locale. An explicit ?lang=
// is remembered in a cookie; otherwise the cookie, then Accept-Language decide.
func LocaleMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var candidates []string

		if q := c.Query("lang"); q != "" {
			candidates = append(candidates, q)
		}
		if ck := c.Cookies(langCookie); ck != "" {
			candidates = append(candidates, ck)
		}
		if accept := c.Get(fiber.HeaderAcceptLanguage); accept != "" {
			candidates = append(candidates, accept)
		}

		lang := MatchLanguage(candidates...)

		if q := c.Query("lang"); q != "" && q == lang {
			c.Cookie(&fiber.Cookie{
				Name:     langCookie,
				Value:    lang,
				Expires:  time.Now().Add(365 * 24 * time.Hour),
				SameSite: "Lax",
			})
		}

		c.Locals("localizer", utils.GetLocalizer(lang))
		c.Locals("lang", lang)

		utils.Log.Debug("Locale detected: %s for path: %s", lang, c.Path())

		return c.Next()
	}
}

// MatchLanguage picks the best supported language for the given preferences,
// in priority order. Each entry may be a tag or an Accept-Language value.
func MatchLanguage(prefs ...string) string {
	for _, pref := range prefs {
		tags, _, err := language.ParseAcceptLanguage(pref)
		if err != nil || len(tags) == 0 {
			continue
		}
		tag, _, confidence := matcher.Match(tags...)
		if confidence == language.No {
			continue
		}
		base, _ := tag.Base()
		return base.String()
	}
	return language.English.String()
}
