package router

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

func newReqID() string {
	id := uuid.New().String()
	return id[:8]
}

// splitCommand returns the lower-cased command word (without "/" and
// "@botname") and the rest of the text.
func splitCommand(text string) (word, rest string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, tail = text[:i], text[i:]
	}
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", "", false
	}
	return word, strings.TrimSpace(tail), true
}

// tokenize splits arguments on whitespace, keeping quoted parts together.
//
//	a "b c" 'd' -> [a, b c, d]
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar rune
		esc   bool
		quote bool
	)
	flush := func() {
		if buf.Len() > 0 || quote {
			out = append(out, buf.String())
			buf.Reset()
		}
		quote = false
	}
	for _, ch := range s {
		switch {
		case esc:
			buf.WriteRune(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ && ch == qChar:
			inQ = false
		case inQ:
			buf.WriteRune(ch)
		case ch == '"' || ch == '\'':
			inQ, qChar, quote = true, ch, true
		case ch == ' ' || ch == '\t' || ch == '\n':
			flush()
		default:
			buf.WriteRune(ch)
		}
	}
	flush()
	return out
}
