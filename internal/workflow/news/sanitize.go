package news

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// telegramPolicy keeps only the inline tags Telegram's HTML parse mode
// understands; everything else is stripped and text is escaped.
var telegramPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "tg")
	p.RequireParseableURLs(true)
	return p
}()

var reTag = regexp.MustCompile(`<[^>]*>`)

// Sanitize turns user text into Telegram-safe HTML.
func Sanitize(s string) string {
	return strings.TrimSpace(telegramPolicy.Sanitize(strings.TrimSpace(s)))
}

// plainLen counts visible characters of sanitized HTML.
func plainLen(h string) int {
	return utf8.RuneCountInString(strings.TrimSpace(html.UnescapeString(reTag.ReplaceAllString(h, ""))))
}
