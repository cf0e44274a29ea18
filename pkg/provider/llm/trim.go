package llm

import (
	"regexp"
	"strings"
)

var (
	// Fenced code blocks are dropped wholly; reading code aloud helps nobody.
	fenceRe   = regexp.MustCompile("(?s)```.*?```")
	linkRe    = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	headingRe = regexp.MustCompile(`(?m)^\s*#+\s*`)
	quoteRe   = regexp.MustCompile(`(?m)^\s*>\s?`)
	bulletRe  = regexp.MustCompile(`(?m)^\s*(?:[-*+]|\d+[.)])\s+`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// markerReplacer strips inline markdown markers. Longer markers are listed
// before their single-character forms so "**" wins over "*".
var markerReplacer = strings.NewReplacer(
	"**", "",
	"__", "",
	"~~", "",
	"`", "",
	"*", "",
	"_", "",
)

// TrimForSpeech turns a model reply into plain text suitable for synthesis:
// code fences are removed, links collapse to their label, heading/quote/list
// markers and inline emphasis are stripped, and all whitespace runs become a
// single space.
func TrimForSpeech(s string) string {
	s = fenceRe.ReplaceAllString(s, " ")
	s = linkRe.ReplaceAllString(s, "$1")
	s = headingRe.ReplaceAllString(s, "")
	s = quoteRe.ReplaceAllString(s, "")
	s = bulletRe.ReplaceAllString(s, "")
	s = markerReplacer.Replace(s)
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
