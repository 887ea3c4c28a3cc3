package graph

import (
	"html"
	"regexp"
	"strings"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// StripHTML reduces an HTML message body to plain text: tags dropped,
// entities unescaped, whitespace trimmed. Good enough for interest matching
// and for the extraction prompt; not a full HTML parser.
func StripHTML(body string) string {
	text := htmlTagPattern.ReplaceAllString(body, " ")
	text = html.UnescapeString(text)
	return strings.TrimSpace(text)
}

// PlainText returns the message body as plain text, stripping markup when the
// provider reported an HTML body.
func PlainText(body, bodyType string) string {
	if strings.EqualFold(bodyType, "html") {
		return StripHTML(body)
	}
	return strings.TrimSpace(body)
}
