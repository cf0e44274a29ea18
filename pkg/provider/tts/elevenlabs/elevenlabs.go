// Package elevenlabs provides an ElevenLabs-backed speech synthesizer using
// the text-to-speech REST API with a raw PCM output format.
//
// ElevenLabs returns no phoneme timing, so every result carries zero
// phoneme metadata and the avatar keeps its mouth closed while the audio
// plays. Voices are identified by string IDs rather than numeric styles;
// the speaker argument to Synthesize is ignored and the voice configured
// at construction is always used.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/taiwalabs/taiwa/pkg/provider/tts"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultModel        = "eleven_flash_v2_5"
	defaultOutputFormat = "pcm_24000"

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75

	defaultTimeout = 30 * time.Second
)

// Option is a functional option for configuring the ElevenLabs Client.
type Option func(*Client)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithOutputFormat sets the audio output format. Only raw PCM formats
// ("pcm_16000", "pcm_22050", "pcm_24000", "pcm_44100") are accepted; the
// sample rate of every result follows the format.
func WithOutputFormat(format string) Option {
	return func(c *Client) {
		c.outputFormat = format
	}
}

// WithBaseURL overrides the API base URL. Useful for testing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client implements tts.Synthesizer backed by the ElevenLabs REST API.
type Client struct {
	apiKey       string
	voiceID      string
	baseURL      string
	model        string
	outputFormat string
	sampleRate   int
	httpClient   *http.Client
}

// New creates a new ElevenLabs Client speaking with the given voice.
// apiKey and voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	c := &Client{
		apiKey:       apiKey,
		voiceID:      voiceID,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFormat,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	rate, err := rateFromFormat(c.outputFormat)
	if err != nil {
		return nil, err
	}
	c.sampleRate = rate
	return c, nil
}

// rateFromFormat extracts the sample rate from a raw PCM output format name.
func rateFromFormat(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", format)
	}
	return rate, nil
}

// ---- request/response types ----

// ttsRequest is the JSON payload for POST /v1/text-to-speech/{voice_id}.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to speech with the configured voice and returns
// mono 16-bit PCM at the rate of the configured output format. The speaker
// argument is ignored.
func (c *Client) Synthesize(ctx context.Context, text string, _ int) (tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, errors.New("elevenlabs: text must not be empty")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:    text,
		ModelID: c.model,
		VoiceSettings: voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarityBoost,
		},
	})
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(c.voiceID), url.QueryEscape(c.outputFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tts.Result{}, fmt.Errorf("elevenlabs: server returned status %d", resp.StatusCode)
	}
	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Result{}, fmt.Errorf("elevenlabs: read response: %w", err)
	}

	return tts.Result{Audio: pcm, SampleRate: c.sampleRate}, nil
}

// ---- voice catalogue ----

// Voice is a single voice entry from the ElevenLabs API.
type Voice struct {
	ID       string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []Voice `json:"voices"`
}

// ListVoices returns all voices available for the configured API key.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: server returned status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return vr.Voices, nil
}

// Ensure Client implements tts.Synthesizer at compile time.
var _ tts.Synthesizer = (*Client)(nil)
