package stt

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultFabrications are phrases batch speech models invent when fed
// silence or noise, mostly broadcast sign-offs absorbed from training data.
var defaultFabrications = []string{
	"ご視聴ありがとうございました",
	"ご視聴いただきありがとうございます",
	"ご視聴ありがとうございます",
	"チャンネル登録お願いします",
	"チャンネル登録よろしくお願いします",
	"おまかせあれ",
	"お疲れ様でした",
	"ではまた",
	"またね",
	"thank you for watching",
	"thanks for watching",
	"please subscribe",
}

// defaultSimilarityThreshold is the Jaro-Winkler score at or above which a
// near-miss counts as a fabricated phrase.
const defaultSimilarityThreshold = 0.92

// FilterOption is a functional option for configuring a [Filter].
type FilterOption func(*Filter)

// WithPhrases replaces the default fabricated-phrase list.
func WithPhrases(phrases ...string) FilterOption {
	return func(f *Filter) {
		f.phrases = phrases
	}
}

// WithSimilarityThreshold sets the Jaro-Winkler score at or above which a
// near-miss counts as a match. Default: 0.92.
func WithSimilarityThreshold(threshold float64) FilterOption {
	return func(f *Filter) {
		f.threshold = threshold
	}
}

// Filter drops recognizer output that matches a known fabricated phrase.
// Matching is exact after trimming case and trailing punctuation, with a
// Jaro-Winkler near-miss pass to catch variants that differ only in a
// trailing particle or an extra word.
//
// Construct with [NewFilter]; a Filter is read-only afterwards and safe for
// concurrent use.
type Filter struct {
	phrases    []string
	normalized []string
	threshold  float64
}

// NewFilter returns a filter over the supplied options. With no options it
// covers the stock fabrication list at the default threshold.
func NewFilter(opts ...FilterOption) *Filter {
	f := &Filter{
		phrases:   defaultFabrications,
		threshold: defaultSimilarityThreshold,
	}
	for _, o := range opts {
		o(f)
	}
	f.normalized = make([]string, len(f.phrases))
	for i, p := range f.phrases {
		f.normalized[i] = normalizeText(p)
	}
	return f
}

// Clean returns text trimmed of surrounding whitespace, or "" when it
// matches a known fabricated phrase.
func (f *Filter) Clean(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	norm := normalizeText(trimmed)
	for _, ref := range f.normalized {
		if norm == ref {
			return ""
		}
		if matchr.JaroWinkler(norm, ref, false) >= f.threshold {
			return ""
		}
	}
	return trimmed
}

// normalizeText lowercases and strips the trailing punctuation recognizers
// append inconsistently.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimRight(s, "。、．，.,!?！？ ")
}
