// Package deepgram provides a Deepgram-backed speech recognizer using the
// prerecorded transcription REST API. It implements the stt.Recognizer
// interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "ja"
)

// Option is a functional option for configuring the Deepgram Client.
type Option func(*Client)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "ja",
// "en", "de-DE").
func WithLanguage(language string) Option {
	return func(c *Client) {
		c.language = language
	}
}

// WithEndpoint overrides the transcription endpoint URL. Intended for tests
// and self-hosted Deepgram deployments.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient replaces the default HTTP client (30 s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithFilter replaces the default fabrication filter. Pass nil to disable
// filtering entirely.
func WithFilter(f *stt.Filter) Option {
	return func(c *Client) {
		c.filter = f
	}
}

// Client implements stt.Recognizer backed by the Deepgram prerecorded API.
// It is safe for concurrent use; each Recognize call is an independent
// request.
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	httpClient *http.Client
	filter     *stt.Filter
}

// Compile-time assertion that Client implements stt.Recognizer.
var _ stt.Recognizer = (*Client)(nil)

// New creates a new Deepgram Client. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		filter:     stt.NewFilter(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Recognize conditions pcm, encodes it as WAV, and submits it for batch
// transcription. Audio below the quiet gate returns "" without any network
// call.
func (c *Client) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("deepgram: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	cleaned := stt.Prepare(pcm)
	if cleaned == nil {
		return "", nil
	}

	endpoint, err := c.buildURL()
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	wav := audio.EncodeWAV(cleaned, stt.SampleRate, 1)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response body: %w", err)
	}

	text, err := parseTranscript(data)
	if err != nil {
		return "", err
	}
	if c.filter == nil {
		return text, nil
	}
	return c.filter.Clean(text), nil
}

// buildURL constructs the prerecorded endpoint URL with the model and
// language query parameters.
func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", c.model)
	q.Set("language", c.language)
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parseTranscript extracts the first alternative of the first channel from a
// Deepgram prerecorded response.
func parseTranscript(data []byte) (string, error) {
	var resp struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string `json:"transcript"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("deepgram: parse JSON response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return resp.Results.Channels[0].Alternatives[0].Transcript, nil
}
