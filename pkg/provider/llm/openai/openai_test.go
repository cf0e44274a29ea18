package openai

import (
	"testing"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
)

// TestNew_MissingAPIKey ensures constructor rejects an empty API key.
func TestNew_MissingAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_MissingModel ensures constructor rejects an empty model.
func TestNew_MissingModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_Options checks that optional settings are accepted without error.
func TestNew_Options(t *testing.T) {
	_, err := New("sk-test", "gpt-4o-mini",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
		WithSystemPrompt("You are terse."),
		WithTemperature(0.3),
		WithMaxTokens(128),
	)
	if err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}

func newTestResponder(t *testing.T, opts ...Option) *Responder {
	t.Helper()
	r, err := New("sk-test", "gpt-4o-mini", opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

// TestBuildParams_SystemPromptFirst checks that the system prompt leads the
// message list by default.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	r := newTestResponder(t)
	params := r.buildParams("こんにちは", nil)

	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Fatal("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Fatal("expected last message to be a user message")
	}
}

// TestBuildParams_HistoryInterleaved checks that exchanges become alternating
// user/assistant turns with the new user message last.
func TestBuildParams_HistoryInterleaved(t *testing.T) {
	r := newTestResponder(t)
	history := []llm.Exchange{
		{UserText: "おはよう", CoachText: "おはようございます"},
		{UserText: "元気?", CoachText: "元気ですよ"},
	}
	params := r.buildParams("それは良かった", history)

	if len(params.Messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(params.Messages))
	}
	// system, then user/assistant pairs, then the live user turn.
	if params.Messages[0].OfSystem == nil {
		t.Error("message[0]: expected system")
	}
	for _, i := range []int{1, 3, 5} {
		if params.Messages[i].OfUser == nil {
			t.Errorf("message[%d]: expected user", i)
		}
	}
	for _, i := range []int{2, 4} {
		if params.Messages[i].OfAssistant == nil {
			t.Errorf("message[%d]: expected assistant", i)
		}
	}
}

// TestBuildParams_EmptySystemPromptOmitted checks that an empty prompt drops
// the system message entirely.
func TestBuildParams_EmptySystemPromptOmitted(t *testing.T) {
	r := newTestResponder(t, WithSystemPrompt(""))
	params := r.buildParams("hi", nil)

	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].OfUser == nil {
		t.Fatal("expected sole message to be a user message")
	}
}

// TestBuildParams_ModelSet checks the model id lands on the params.
func TestBuildParams_ModelSet(t *testing.T) {
	r := newTestResponder(t)
	params := r.buildParams("hi", nil)

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", params.Model)
	}
}

// TestAssistantMessage checks the assistant union construction used for
// history turns.
func TestAssistantMessage(t *testing.T) {
	msg := assistantMessage("よくできました")
	if msg.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}
