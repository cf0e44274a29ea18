// Package coqui provides a Synthesizer backed by a local Coqui TTS server.
//
// Two server APIs are supported. The default, APIModeStandard, targets the
// standard Coqui TTS server (ghcr.io/coqui-ai/tts-cpu): synthesis is a single
// GET /api/tts call and the voice catalogue comes from GET /details.
// APIModeXTTS targets the XTTS v2 API server instead: synthesis is POST
// /tts_to_audio/, the catalogue is GET /studio_speakers, and new voices can
// be cloned from audio samples via POST /clone_speaker.
//
// Coqui identifies voices by string IDs rather than numeric styles, so the
// speaker argument to Synthesize is ignored; configure the voice with
// WithSpeakerID. Neither server reports phoneme timing, so every result
// carries zero phoneme metadata and the avatar keeps its mouth closed while
// the audio plays.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Client)(nil)

// ---- constants ----

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
	ttsToAudioEndpoint     = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	cloneSpeakerEndpoint   = "/clone_speaker"
)

// ---- APIMode ----

// APIMode selects which Coqui server API the client targets.
type APIMode string

const (
	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default. Voice cloning is not available in this mode.
	APIModeStandard APIMode = "standard"

	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	// Synthesis requires a speaker id; see WithSpeakerID.
	APIModeXTTS APIMode = "xtts"
)

// ---- options ----

// Option is a functional option for configuring a coqui Client.
type Option func(*Client)

// WithLanguage sets the language code sent to the server (e.g., "en", "ja").
// Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(c *Client) {
		c.language = lang
	}
}

// WithSpeakerID sets the voice used for synthesis. In standard mode this is
// the speaker name of a multi-speaker model and may be left empty for
// single-speaker models. In XTTS mode it names a studio or cloned speaker
// and must be set.
func WithSpeakerID(id string) Option {
	return func(c *Client) {
		c.speakerID = id
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithAPIMode selects the server API. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(c *Client) {
		c.apiMode = mode
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ---- Client ----

// Client implements tts.Synthesizer backed by a locally running Coqui TTS
// server. It is safe for concurrent use; each Synthesize call is an
// independent request.
type Client struct {
	serverURL  string
	language   string
	speakerID  string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a new Client that targets the server at serverURL (e.g.,
// "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	c := &Client{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- wire types ----

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// ---- Synthesize ----

// Synthesize renders text with the configured voice and returns mono 16-bit
// PCM at the server's native rate. The speaker argument is ignored.
func (c *Client) Synthesize(ctx context.Context, text string, _ int) (tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, errors.New("coqui: text must not be empty")
	}

	var (
		wav []byte
		err error
	)
	if c.apiMode == APIModeXTTS {
		wav, err = c.synthesizeXTTS(ctx, text)
	} else {
		wav, err = c.synthesizeStandard(ctx, text)
	}
	if err != nil {
		return tts.Result{}, err
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		return tts.Result{}, fmt.Errorf("coqui: parse WAV response: %w", err)
	}
	pcm := info.PCM(wav)
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	return tts.Result{Audio: pcm, SampleRate: info.SampleRate}, nil
}

// synthesizeStandard performs one GET /api/tts request using URL query
// parameters and returns the WAV bytes.
func (c *Client) synthesizeStandard(ctx context.Context, text string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if c.speakerID != "" {
		params.Set("speaker_id", c.speakerID)
	}
	if c.language != "" {
		params.Set("language_id", c.language)
	}

	reqURL := c.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", apiTTSEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", apiTTSEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// synthesizeXTTS performs one POST /tts_to_audio/ call (XTTS v2 mode) and
// returns the WAV bytes. The configured speaker id is required.
func (c *Client) synthesizeXTTS(ctx context.Context, text string) ([]byte, error) {
	if c.speakerID == "" {
		return nil, errors.New("coqui: speaker id must be set in XTTS mode")
	}

	payload, err := json.Marshal(ttsRequest{
		Text:       text,
		SpeakerWav: c.speakerID,
		Language:   c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+ttsToAudioEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: POST %s: %w", ttsToAudioEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: POST %s returned status %d", ttsToAudioEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	return wav, nil
}

// ---- voice catalogue ----

// Voice is one selectable server voice. ID is what WithSpeakerID accepts.
type Voice struct {
	ID   string
	Name string
}

// ListVoices retrieves the available voices from the server.
//
// In standard mode it calls GET /details and returns one Voice per speaker
// for multi-speaker models, or a single Voice named after the model for
// single-speaker models. In XTTS mode it calls GET /studio_speakers.
func (c *Client) ListVoices(ctx context.Context) ([]Voice, error) {
	if c.apiMode == APIModeXTTS {
		return c.listVoicesXTTS(ctx)
	}
	return c.listVoicesStandard(ctx)
}

func (c *Client) listVoicesStandard(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+detailsEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create details request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", detailsEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", detailsEndpoint, resp.StatusCode)
	}

	var details detailsResponse
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("coqui: decode details response: %w", err)
	}

	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]Voice, 0, len(speakers))
		for _, s := range speakers {
			voices = append(voices, Voice{ID: s, Name: s})
		}
		return voices, nil
	}

	// Single-speaker model: one voice named after the model.
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []Voice{{ID: name, Name: name}}, nil
}

func (c *Client) listVoicesXTTS(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+studioSpeakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create speakers request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: GET %s: %w", studioSpeakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: GET %s returned status %d", studioSpeakersEndpoint, resp.StatusCode)
	}

	// The response is a map keyed by speaker name; only the keys matter.
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("coqui: decode studio speakers: %w", err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, Voice{ID: name, Name: name})
	}
	return voices, nil
}

// ---- voice cloning ----

// CloneVoice creates a new speaker voice by uploading WAV audio samples to
// the XTTS server via POST /clone_speaker. Each element of samples must be a
// complete WAV file. Standard mode does not support cloning and always
// returns an error.
func (c *Client) CloneVoice(ctx context.Context, samples [][]byte) (Voice, error) {
	if c.apiMode != APIModeXTTS {
		return Voice{}, errors.New("coqui: voice cloning requires XTTS mode")
	}
	if len(samples) == 0 {
		return Voice{}, errors.New("coqui: CloneVoice requires at least one audio sample")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, sample := range samples {
		fw, err := mw.CreateFormFile("wav_files", fmt.Sprintf("sample_%02d.wav", i))
		if err != nil {
			return Voice{}, fmt.Errorf("coqui: create form file: %w", err)
		}
		if _, err := fw.Write(sample); err != nil {
			return Voice{}, fmt.Errorf("coqui: write form file: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return Voice{}, fmt.Errorf("coqui: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return Voice{}, fmt.Errorf("coqui: create clone request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Voice{}, fmt.Errorf("coqui: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Voice{}, fmt.Errorf("coqui: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloned cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloned); err != nil {
		return Voice{}, fmt.Errorf("coqui: decode clone response: %w", err)
	}
	if cloned.Name == "" {
		return Voice{}, errors.New("coqui: clone response missing name")
	}
	return Voice{ID: cloned.Name, Name: cloned.Name}, nil
}
