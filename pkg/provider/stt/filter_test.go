package stt_test

import (
	"testing"

	"github.com/taiwalabs/taiwa/pkg/provider/stt"
)

func TestFilter_PassesGenuineText(t *testing.T) {
	f := stt.NewFilter()
	for _, text := range []string{
		"今日は天気がいいですね",
		"that sounds like a great plan",
		"また明日",
	} {
		if got := f.Clean(text); got != text {
			t.Errorf("Clean(%q) = %q, want unchanged", text, got)
		}
	}
}

func TestFilter_TrimsWhitespace(t *testing.T) {
	f := stt.NewFilter()
	if got := f.Clean("  こんにちは "); got != "こんにちは" {
		t.Errorf("Clean = %q, want %q", got, "こんにちは")
	}
}

func TestFilter_DropsExactFabrication(t *testing.T) {
	f := stt.NewFilter()
	for _, text := range []string{
		"ご視聴ありがとうございました",
		"チャンネル登録お願いします",
		"thank you for watching",
	} {
		if got := f.Clean(text); got != "" {
			t.Errorf("Clean(%q) = %q, want empty", text, got)
		}
	}
}

func TestFilter_DropsPunctuationVariants(t *testing.T) {
	f := stt.NewFilter()
	for _, text := range []string{
		"ご視聴ありがとうございました。",
		"Thanks for watching!",
		"thank you for watching.",
	} {
		if got := f.Clean(text); got != "" {
			t.Errorf("Clean(%q) = %q, want empty", text, got)
		}
	}
}

func TestFilter_DropsNearMiss(t *testing.T) {
	f := stt.NewFilter()
	if got := f.Clean("thanks for watching everyone"); got != "" {
		t.Errorf("Clean = %q, want empty for a near-miss of a known phrase", got)
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	f := stt.NewFilter()
	if got := f.Clean("   "); got != "" {
		t.Errorf("Clean of whitespace = %q, want empty", got)
	}
}

func TestFilter_CustomPhrases(t *testing.T) {
	f := stt.NewFilter(stt.WithPhrases("teapot incantation"))
	if got := f.Clean("teapot incantation"); got != "" {
		t.Errorf("custom phrase not dropped: %q", got)
	}
	if got := f.Clean("ご視聴ありがとうございました"); got == "" {
		t.Error("stock phrase dropped despite custom list replacing it")
	}
}

func TestFilter_ThresholdDisablesNearMiss(t *testing.T) {
	f := stt.NewFilter(stt.WithSimilarityThreshold(1.01))
	if got := f.Clean("thanks for watching everyone"); got == "" {
		t.Error("near-miss dropped with matching disabled by threshold")
	}
	if got := f.Clean("thanks for watching"); got != "" {
		t.Errorf("exact match survived: %q", got)
	}
}
