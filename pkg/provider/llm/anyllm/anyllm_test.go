package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
)

// ── Constructors ─────────────────────────────────────────────────────────────

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs with an API key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	r, err := New("openai", "gpt-4o-mini", WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil responder")
	}
	if r.model != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", r.model)
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI returns an error when no API key
// is available. This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "") // Ensure env var is clear.
	_, err := New("openai", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Ollama_NoAPIKey checks that Ollama works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	r, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r == nil {
		t.Fatal("expected non-nil responder")
	}
}

// TestConvenienceConstructors checks all convenience constructors delegate correctly.
func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*Responder, error)
	}{
		{"NewOpenAI", func() (*Responder, error) { return NewOpenAI("gpt-4o-mini", WithAPIKey("sk-test")) }},
		{"NewAnthropic", func() (*Responder, error) {
			return NewAnthropic("claude-3-5-haiku-latest", WithAPIKey("sk-ant-test"))
		}},
		{"NewOllama", func() (*Responder, error) { return NewOllama("llama3") }},
		{"NewLlamaCpp", func() (*Responder, error) { return NewLlamaCpp("llama3") }},
		{"NewLlamaFile", func() (*Responder, error) { return NewLlamaFile("llama3") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if r == nil {
				t.Fatalf("%s: expected non-nil responder", tt.name)
			}
		})
	}
}

// ── buildParams ──────────────────────────────────────────────────────────────

func newTestResponder(t *testing.T, opts ...Option) *Responder {
	t.Helper()
	r, err := New("ollama", "llama3", opts...)
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
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[0].Content == "" {
		t.Error("expected non-empty default system prompt")
	}
	if params.Messages[1].Role != "user" {
		t.Errorf("last message role = %q, want user", params.Messages[1].Role)
	}
	if params.Messages[1].Content != "こんにちは" {
		t.Errorf("last message content = %q, want こんにちは", params.Messages[1].Content)
	}
}

// TestBuildParams_HistoryInterleaved checks that exchanges become alternating
// user/assistant turns in order, with the new user message last.
func TestBuildParams_HistoryInterleaved(t *testing.T) {
	r := newTestResponder(t)
	history := []llm.Exchange{
		{UserText: "おはよう", CoachText: "おはようございます"},
		{UserText: "元気?", CoachText: "元気ですよ"},
	}
	params := r.buildParams("それは良かった", history)

	wantRoles := []string{anyllmlib.RoleSystem, "user", "assistant", "user", "assistant", "user"}
	wantContents := []string{"", "おはよう", "おはようございます", "元気?", "元気ですよ", "それは良かった"}

	if len(params.Messages) != len(wantRoles) {
		t.Fatalf("expected %d messages, got %d", len(wantRoles), len(params.Messages))
	}
	for i, m := range params.Messages {
		if m.Role != wantRoles[i] {
			t.Errorf("message[%d] role = %q, want %q", i, m.Role, wantRoles[i])
		}
		if wantContents[i] != "" && m.Content != wantContents[i] {
			t.Errorf("message[%d] content = %q, want %q", i, m.Content, wantContents[i])
		}
	}
}

// TestBuildParams_CustomSystemPrompt checks the override path.
func TestBuildParams_CustomSystemPrompt(t *testing.T) {
	r := newTestResponder(t, WithSystemPrompt("You are terse."))
	params := r.buildParams("hi", nil)

	if params.Messages[0].Content != "You are terse." {
		t.Errorf("system prompt = %q, want override", params.Messages[0].Content)
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
	if params.Messages[0].Role != "user" {
		t.Errorf("message role = %q, want user", params.Messages[0].Role)
	}
}

// TestBuildParams_Defaults checks that temperature and max tokens carry the
// package defaults.
func TestBuildParams_Defaults(t *testing.T) {
	r := newTestResponder(t)
	params := r.buildParams("hi", nil)

	if params.Temperature == nil || *params.Temperature != defaultTemperature {
		t.Errorf("Temperature = %v, want %v", params.Temperature, defaultTemperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != defaultMaxTokens {
		t.Errorf("MaxTokens = %v, want %v", params.MaxTokens, defaultMaxTokens)
	}
	if params.Model != "llama3" {
		t.Errorf("Model = %q, want llama3", params.Model)
	}
}

// TestBuildParams_ZeroTemperatureUsesBackendDefault checks that zero leaves
// the pointer nil.
func TestBuildParams_ZeroTemperatureUsesBackendDefault(t *testing.T) {
	r := newTestResponder(t, WithTemperature(0))
	params := r.buildParams("hi", nil)

	if params.Temperature != nil {
		t.Errorf("Temperature = %v, want nil", params.Temperature)
	}
}

// TestBuildParams_CustomLimits checks option plumbing for temperature and tokens.
func TestBuildParams_CustomLimits(t *testing.T) {
	r := newTestResponder(t, WithTemperature(1.2), WithMaxTokens(64))
	params := r.buildParams("hi", nil)

	if params.Temperature == nil || *params.Temperature != 1.2 {
		t.Errorf("Temperature = %v, want 1.2", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 64 {
		t.Errorf("MaxTokens = %v, want 64", params.MaxTokens)
	}
}
