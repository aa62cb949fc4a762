package server

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// Chat is plain text end to end, so everything goes through the strict
// policy; formatting survives as literal characters.
var strictPolicy = bluemonday.StrictPolicy()

const (
	maxUsernameLen = 24
	maxChannelLen  = 32
	maxTextLen     = 10000
)

// stripControl removes control characters except tab and newline, keeping
// emojis, CJK and other printable Unicode intact.
func stripControl(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			continue
		}
		if r == unicode.ReplacementChar {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) > max {
		return string(runes[:max])
	}
	return s
}

// SanitizeUsername strips markup and control characters from a username.
// Empty results stay empty; callers decide the fallback.
func SanitizeUsername(name string) string {
	name = strictPolicy.Sanitize(html.UnescapeString(name))
	name = strings.TrimSpace(stripControl(name))
	return truncateRunes(name, maxUsernameLen)
}

// SanitizeChannel normalizes a channel name to a lowercase slug.
func SanitizeChannel(channel string) string {
	channel = strings.ToLower(strings.TrimSpace(channel))
	var b strings.Builder
	b.Grow(len(channel))
	for _, r := range channel {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return truncateRunes(b.String(), maxChannelLen)
}

// SanitizeText strips control characters from message text and bounds its
// length. Markup is left alone: message text is rendered as plain text and
// must round-trip byte-exact (attachment URLs travel in it).
func SanitizeText(text string) string {
	text = strings.TrimSpace(stripControl(text))
	return truncateRunes(text, maxTextLen)
}
