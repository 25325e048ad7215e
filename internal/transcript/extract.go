package transcript

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinContentChars is the length a cleaned message must exceed to be kept.
const DefaultMinContentChars = 10

// DefaultMaxContentChars caps sanitized content sent to the memory store.
const DefaultMaxContentChars = 100000

// Markup injected by the host or by recall itself; never worth remembering.
var strippedRegions = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<system-reminder>.*?</system-reminder>`),
	regexp.MustCompile(`(?s)<nebula-context>.*?</nebula-context>`),
}

// Clean removes injected markup regions and surrounding whitespace.
func Clean(text string) string {
	for _, re := range strippedRegions {
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}

// Extract returns the memorable text of a message's content.
//
// Plain text is cleaned; block content keeps the non-empty cleaned text
// blocks joined by a blank line. The result is absent when nothing remains or
// when it is no longer than minChars runes (minChars <= 0 disables the check).
func Extract(content Content, minChars int) (string, bool) {
	var text string
	switch c := content.(type) {
	case PlainText:
		text = Clean(string(c))
	case Blocks:
		parts := make([]string, 0, len(c))
		for _, b := range c {
			if b.Type != "text" {
				continue
			}
			if t := Clean(b.Text); t != "" {
				parts = append(parts, t)
			}
		}
		text = strings.Join(parts, "\n\n")
	default:
		return "", false
	}

	if text == "" {
		return "", false
	}
	if minChars > 0 && utf8.RuneCountInString(text) <= minChars {
		return "", false
	}
	return text, true
}

// Sanitize drops control characters (except tab, newline and carriage
// return), byte order marks and Unicode specials, then truncates to maxLen
// runes. maxLen <= 0 means DefaultMaxContentChars.
func Sanitize(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = DefaultMaxContentChars
	}
	var b strings.Builder
	b.Grow(len(text))
	n := 0
	for _, r := range text {
		if dropRune(r) {
			continue
		}
		if n == maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func dropRune(r rune) bool {
	switch {
	case r == '\t' || r == '\n' || r == '\r':
		return false
	case r < 0x20 || r == 0x7f:
		return true
	case r == 0xfeff:
		return true
	case r >= 0xfff0 && r <= 0xffff:
		return true
	}
	return false
}
