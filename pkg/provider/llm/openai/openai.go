// Package openai provides a Responder backed directly by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/taiwalabs/taiwa/pkg/provider/llm"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 256
)

// Responder implements llm.Responder using the OpenAI chat completions API.
type Responder struct {
	client       oai.Client
	model        string
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// config holds optional configuration for the Responder.
type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
	systemPrompt string
	temperature  float64
	maxTokens    int
}

// Option is a functional option for the Responder.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) {
		c.organization = org
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSystemPrompt replaces the default coaching system prompt. Pass an empty
// string to omit the system message entirely.
func WithSystemPrompt(prompt string) Option {
	return func(c *config) {
		c.systemPrompt = prompt
	}
}

// WithTemperature sets the sampling temperature. Zero leaves the API default
// in effect.
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

// Compile-time assertion that Responder implements llm.Responder.
var _ llm.Responder = (*Responder)(nil)

// New constructs a new OpenAI Responder.
func New(apiKey string, model string, opts ...Option) (*Responder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{
		systemPrompt: llm.DefaultSystemPrompt,
		temperature:  defaultTemperature,
		maxTokens:    defaultMaxTokens,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Responder{
		client:       client,
		model:        model,
		systemPrompt: cfg.systemPrompt,
		temperature:  cfg.temperature,
		maxTokens:    cfg.maxTokens,
	}, nil
}

// Respond implements llm.Responder.
func (r *Responder) Respond(ctx context.Context, userText string, history []llm.Exchange) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, r.buildParams(userText, history))
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty choices in response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildParams assembles the chat message list: system prompt, then the
// exchange history as alternating user/assistant turns, then the current
// user message.
func (r *Responder) buildParams(userText string, history []llm.Exchange) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, 2*len(history)+2)

	if r.systemPrompt != "" {
		messages = append(messages, oai.SystemMessage(r.systemPrompt))
	}
	for _, ex := range history {
		messages = append(messages, oai.UserMessage(ex.UserText))
		messages = append(messages, assistantMessage(ex.CoachText))
	}
	messages = append(messages, oai.UserMessage(userText))

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(r.model),
		Messages: messages,
	}
	if r.temperature != 0 {
		params.Temperature = param.NewOpt(r.temperature)
	}
	if r.maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(r.maxTokens))
	}
	return params
}

// assistantMessage builds an assistant-role message param for a past coach turn.
func assistantMessage(content string) oai.ChatCompletionMessageParamUnion {
	asst := oai.ChatCompletionAssistantMessageParam{}
	asst.Content.OfString = oai.String(content)
	return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
}
