package handler

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextRunes caps free text fields after sanitising.
const maxTextRunes = 500

var strictPolicy = bluemonday.StrictPolicy()

// plainText strips markup from user supplied free text such as titles and
// deletion reasons. Entities escaped by the policy are decoded again since the
// value is stored and served as JSON, not HTML.
func plainText(value string) string {
	text := strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
	if runes := []rune(text); len(runes) > maxTextRunes {
		text = strings.TrimSpace(string(runes[:maxTextRunes]))
	}
	return text
}
