package utils

import (
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

var (
	// Bundle holds the messages of every shipped locale
	Bundle = i18n.NewBundle(language.English)
	// Localizer is the fallback used outside of a request
	Localizer = i18n.NewLocalizer(Bundle, language.English.String())

	// SupportedLanguages lists the locales shipped in locales/, default first
	SupportedLanguages = []language.Tag{language.English, language.Japanese}

	localizers sync.Map // lang -> *i18n.Localizer
)

// InitI18n loads active.<lang>.toml for every supported language from dir.
// A missing locale file is logged; the messages then fall back to their ids.
func InitI18n(dir string) error {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, tag := range SupportedLanguages {
		path := filepath.Join(dir, "active."+tag.String()+".toml")
		if _, err := bundle.LoadMessageFile(path); err != nil {
			Log.Warn("Failed to load %s locale: %v", tag, err)
		}
	}

	Bundle = bundle
	Localizer = i18n.NewLocalizer(bundle, language.English.String())
	localizers.Clear()

	Log.Info("Loaded %d locales from %s", len(bundle.LanguageTags()), dir)
	return nil
}

// GetLocalizer returns the (cached) localizer for lang
func GetLocalizer(lang string) *i18n.Localizer {
	if lang == "" {
		return Localizer
	}
	if l, ok := localizers.Load(lang); ok {
		return l.(*i18n.Localizer)
	}
	l, _ := localizers.LoadOrStore(lang, i18n.NewLocalizer(Bundle, lang))
	return l.(*i18n.Localizer)
}

// T translates messageID; unknown ids come back unchanged
func T(localizer *i18n.Localizer, messageID string) string {
	return localize(localizer, &i18n.LocalizeConfig{MessageID: messageID})
}

// TWithData translates messageID with template data
func TWithData(localizer *i18n.Localizer, messageID string, data map[string]interface{}) string {
	return localize(localizer, &i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
}

// TPlural translates messageID for count, which is also available as {{.Count}}
func TPlural(localizer *i18n.Localizer, messageID string, count int) string {
	return localize(localizer, &i18n.LocalizeConfig{
		MessageID:    messageID,
		PluralCount:  count,
		TemplateData: map[string]interface{}{"Count": count},
	})
}

func localize(localizer *i18n.Localizer, cfg *i18n.LocalizeConfig) string {
	if localizer == nil {
		localizer = Localizer
	}
	msg, err := localizer.Localize(cfg)
	if err != nil {
		Log.Debug("Translation error for '%s': %v", cfg.MessageID, err)
		return cfg.MessageID
	}
	return msg
}
