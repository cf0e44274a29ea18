// Package anyllm provides a universal Responder backed by
// github.com/mozilla-ai/any-llm-go, a unified multi-provider interface that
// supports OpenAI, Anthropic, Gemini, Ollama, DeepSeek, Mistral, Groq, and more.
//
// Usage:
//
//	r, err := anyllm.New("openai", "gpt-4o-mini", anyllm.WithAPIKey("sk-..."))
//	r, err := anyllm.NewAnthropic("claude-3-5-haiku-latest", anyllm.WithAPIKey("sk-ant-..."))
package anyllm

import (
	"context"
	"fmt"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 256
)

// config holds optional configuration for the Responder.
type config struct {
	apiKey       string
	baseURL      string
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// Option is a functional option for the Responder.
type Option func(*config)

// WithAPIKey sets the backend API key. Without it, the backend falls back to
// its usual environment variable (OPENAI_API_KEY, ANTHROPIC_API_KEY, etc.).
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// WithBaseURL overrides the backend's API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithSystemPrompt replaces the default coaching system prompt. Pass an empty
// string to omit the system message entirely.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the backend's
// own default in effect.
func WithTemperature(temp float64) Option {
	return func(c *config) {
		c.temperature = temp
	}
}

// WithMaxTokens caps the reply length in model tokens.
func WithMaxTokens(n int) Option {
	return func(c *config) {
		c.maxTokens = n
	}
}

// Responder implements llm.Responder by wrapping github.com/mozilla-ai/any-llm-go.
type Responder struct {
	backend      anyllmlib.Provider
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// Compile-time assertion that Responder implements llm.Responder.
var _ llm.Responder = (*Responder)(nil)

// New creates a new Responder backed by the given LLM provider name.
//
// providerName is one of: "openai", "anthropic", "gemini", "ollama", "deepseek",
// "mistral", "groq", "llamacpp", "llamafile".
//
// model is the specific model to use (e.g., "gpt-4o-mini", "claude-3-5-haiku-latest").
func New(providerName string, model string, opts ...Option) (*Responder, error) {
	if providerName == "" {
		return nil, fmt.Errorf("anyllm: providerName must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}

	cfg := &config{
		systemPrompt: llm.DefaultSystemPrompt,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
	for _, o := range opts {
		o(cfg)
	}

	var libOpts []anyllmlib.Option
	if cfg.apiKey != "" {
		libOpts = append(libOpts, anyllmlib.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		libOpts = append(libOpts, anyllmlib.WithBaseURL(cfg.baseURL))
	}

	backend, err := createBackend(providerName, libOpts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %q backend: %w", providerName, err)
	}

	return &Responder{
		backend:      backend,
		model:        model,
		systemPrompt: cfg.systemPrompt,
		temperature:  cfg.temperature,
		maxTokens:    cfg.maxTokens,
	}, nil
}

// NewOpenAI creates a Responder backed by OpenAI.
// Without WithAPIKey, it reads the OPENAI_API_KEY environment variable.
func NewOpenAI(model string, opts ...Option) (*Responder, error) {
	return New("openai", model, opts...)
}

// NewAnthropic creates a Responder backed by Anthropic.
// Without WithAPIKey, it reads the ANTHROPIC_API_KEY environment variable.
func NewAnthropic(model string, opts ...Option) (*Responder, error) {
	return New("anthropic", model, opts...)
}

// NewGemini creates a Responder backed by Google Gemini.
// Without WithAPIKey, it reads the GEMINI_API_KEY or GOOGLE_API_KEY environment variable.
func NewGemini(model string, opts ...Option) (*Responder, error) {
	return New("gemini", model, opts...)
}

// NewOllama creates a Responder backed by Ollama (local inference).
// Without WithBaseURL, it connects to http://localhost:11434.
func NewOllama(model string, opts ...Option) (*Responder, error) {
	return New("ollama", model, opts...)
}

// NewDeepSeek creates a Responder backed by DeepSeek.
// Without WithAPIKey, it reads the DEEPSEEK_API_KEY environment variable.
func NewDeepSeek(model string, opts ...Option) (*Responder, error) {
	return New("deepseek", model, opts...)
}

// NewMistral creates a Responder backed by Mistral AI.
// Without WithAPIKey, it reads the MISTRAL_API_KEY environment variable.
func NewMistral(model string, opts ...Option) (*Responder, error) {
	return New("mistral", model, opts...)
}

// NewGroq creates a Responder backed by Groq.
// Without WithAPIKey, it reads the GROQ_API_KEY environment variable.
func NewGroq(model string, opts ...Option) (*Responder, error) {
	return New("groq", model, opts...)
}

// NewLlamaCpp creates a Responder backed by a running llama.cpp server.
// Without WithBaseURL, it connects to http://127.0.0.1:8080/v1.
func NewLlamaCpp(model string, opts ...Option) (*Responder, error) {
	return New("llamacpp", model, opts...)
}

// NewLlamaFile creates a Responder backed by a running llamafile server.
// Without WithBaseURL, it connects to the default llamafile server.
func NewLlamaFile(model string, opts ...Option) (*Responder, error) {
	return New("llamafile", model, opts...)
}

// createBackend creates the underlying any-llm-go provider for the given provider name.
func createBackend(providerName string, opts ...anyllmlib.Option) (anyllmlib.Provider, error) {
	switch strings.ToLower(providerName) {
	case "openai":
		return anyllmoai.New(opts...)
	case "anthropic":
		return anthropic.New(opts...)
	case "gemini":
		return gemini.New(opts...)
	case "ollama":
		return ollama.New(opts...)
	case "deepseek":
		return deepseek.New(opts...)
	case "mistral":
		return mistral.New(opts...)
	case "groq":
		return groq.New(opts...)
	case "llamacpp":
		return llamacpp.New(opts...)
	case "llamafile":
		return llamafile.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported provider %q; supported: openai, anthropic, gemini, ollama, deepseek, mistral, groq, llamacpp, llamafile", providerName)
	}
}

// Respond implements llm.Responder.
func (r *Responder) Respond(ctx context.Context, userText string, history []llm.Exchange) (string, error) {
	resp, err := r.backend.Completion(ctx, r.buildParams(userText, history))
	if err != nil {
		return "", fmt.Errorf("anyllm: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("anyllm: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.ContentString()), nil
}

// buildParams assembles the chat message list: system prompt, then the
// exchange history as alternating user/assistant turns, then the current
// user message.
func (r *Responder) buildParams(userText string, history []llm.Exchange) anyllmlib.CompletionParams {
	messages := make([]anyllmlib.Message, 0, 2*len(history)+2)

	if r.systemPrompt != "" {
		messages = append(messages, anyllmlib.Message{
			Role:    anyllmlib.RoleSystem,
			Content: r.systemPrompt,
		})
	}
	for _, ex := range history {
		messages = append(messages, anyllmlib.Message{Role: "user", Content: ex.UserText})
		messages = append(messages, anyllmlib.Message{Role: "assistant", Content: ex.CoachText})
	}
	messages = append(messages, anyllmlib.Message{Role: "user", Content: userText})

	params := anyllmlib.CompletionParams{
		Model:    r.model,
		Messages: messages,
	}
	if r.temperature != 0 {
		temp := r.temperature
		params.Temperature = &temp
	}
	if r.maxTokens > 0 {
		mt := r.maxTokens
		params.MaxTokens = &mt
	}
	return params
}
