package chat

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

var textPolicy = bluemonday.StrictPolicy()

// Sanitize reduces an inbound message to plain text: tags are stripped and
// entities decoded once, so escaped markup the sender typed shows literally.
func Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return html.UnescapeString(textPolicy.Sanitize(text))
}
