// Package whisper provides whisper.cpp-backed speech recognizers.
//
// Two implementations are available: [Client] talks to a running
// whisper-server binary over its REST API (POST /inference), and [Native]
// links whisper.cpp directly through its Go bindings, eliminating HTTP
// overhead entirely. Both take one complete utterance per call, matching the
// session engine's segment-then-recognize flow, and both run the shared
// [stt.Prepare] conditioning and fabrication filtering before returning
// text.
//
// Usage:
//
//	r, err := whisper.New("http://localhost:8080", whisper.WithLanguage("ja"))
//	text, err := r.Recognize(ctx, pcm)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
)

const defaultLanguage = "ja"

// Compile-time assertion that Client implements stt.Recognizer.
var _ stt.Recognizer = (*Client)(nil)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base", "small"). When empty the server uses whichever model it was
// started with — this is the default.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "ja", "en", "de"). Defaults to "ja".
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
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

// Client implements stt.Recognizer backed by a whisper.cpp HTTP server.
// It is safe for concurrent use; each Recognize call is an independent
// request.
type Client struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
	filter     *stt.Filter
}

// New creates a Client that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  serverURL,
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		filter:     stt.NewFilter(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Recognize conditions pcm, encodes it as WAV, and POSTs it to the
// whisper.cpp /inference endpoint. Audio below the quiet gate returns ""
// without any network call.
func (c *Client) Recognize(ctx context.Context, pcm []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	cleaned := stt.Prepare(pcm)
	if cleaned == nil {
		return "", nil
	}

	text, err := c.infer(ctx, cleaned)
	if err != nil {
		return "", err
	}
	return c.clean(text), nil
}

func (c *Client) clean(text string) string {
	if c.filter == nil {
		return strings.TrimSpace(text)
	}
	return c.filter.Clean(text)
}

// infer encodes pcm as a WAV file and POSTs it to the whisper.cpp /inference
// endpoint as multipart/form-data. It returns the raw transcribed text.
func (c *Client) infer(ctx context.Context, pcm []byte) (string, error) {
	wav := audio.EncodeWAV(pcm, stt.SampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	// Optional hint fields.
	if c.language != "" {
		if err := mw.WriteField("language", c.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := c.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}

	return result.Text, nil
}
