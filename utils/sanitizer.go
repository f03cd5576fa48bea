package utils

import (
	"html/template"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// StrictPolicy removes all markup
	StrictPolicy *bluemonday.Policy
	// CardPolicy allows the inline formatting people use on flashcards
	CardPolicy *bluemonday.Policy
)

func init() {
	StrictPolicy = bluemonday.StrictPolicy()

	CardPolicy = bluemonday.NewPolicy()
	CardPolicy.AllowElements("b", "strong", "i", "em", "u", "s", "sub", "sup", "code", "br", "mark")
	CardPolicy.AllowLists()
	CardPolicy.AllowElements("p", "pre")
}

// CardHTML renders card text with the safe inline subset kept and everything
// else removed. Text is stored verbatim by the backend; this only affects display.
func CardHTML(text string) template.HTML {
	return template.HTML(CardPolicy.Sanitize(text))
}

// StripHTML removes all HTML tags from content
func StripHTML(html string) string {
	return StrictPolicy.Sanitize(html)
}
