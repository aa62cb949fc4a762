package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeUsername(t *testing.T) {
	cases := map[string]string{
		"alice":                    "alice",
		"  alice  ":                "alice",
		"<b>alice</b>":             "alice",
		"<i>ali</i>ce":             "alice",
		"ali\x00ce":                "alice",
		"":                         "",
		"   ":                      "",
		strings.Repeat("a", 40):    strings.Repeat("a", 24),
		"민수":                       "민수",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeUsername(in), "%q", in)
	}
}

func TestSanitizeChannel(t *testing.T) {
	cases := map[string]string{
		"general":    "general",
		"General":    "general",
		" random ":   "random",
		"my channel": "mychannel",
		"a/b":        "ab",
		"dev-ops":    "dev-ops",
		"":           "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SanitizeChannel(in), "%q", in)
	}
}

func TestSanitizeTextKeepsURLs(t *testing.T) {
	// attachment URLs travel in message text and must survive untouched
	url := "http://x/y.png?a=1&b=2"
	assert.Equal(t, url, SanitizeText(url))

	assert.Equal(t, "hi there", SanitizeText("hi\x00 there\x07"))
	assert.Equal(t, "a\tb\nc", SanitizeText("a\tb\nc"))
}
