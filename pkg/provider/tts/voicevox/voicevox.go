// Package voicevox provides a Synthesizer backed by a VOICEVOX engine.
//
// Synthesis is a two-step exchange against the engine's REST API: POST
// /audio_query builds the phoneme and prosody query for the text, then POST
// /synthesis renders that query to WAV. The query JSON doubles as the phoneme
// timing source for lip-sync, so audio and viseme metadata come out of the
// same engine round trip.
//
// Typical usage:
//
//	c, err := voicevox.New("http://localhost:50021",
//	    voicevox.WithOutputSamplingRate(48000),
//	)
//	res, err := c.Synthesize(ctx, "こんにちは", 1)
package voicevox

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

	"github.com/taiwalabs/taiwa/pkg/audio"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
	"github.com/taiwalabs/taiwa/pkg/viseme"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Client)(nil)

// ---- constants ----

const (
	// DefaultSpeaker is the engine style used when none is configured.
	DefaultSpeaker = 1

	defaultTimeout = 30 * time.Second

	audioQueryEndpoint = "/audio_query"
	synthesisEndpoint  = "/synthesis"
	speakersEndpoint   = "/speakers"
)

// ---- options ----

// Option is a functional option for configuring a voicevox Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout for calls to the engine.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithDefaultSpeaker sets the style id used when Synthesize is called with a
// negative speaker.
func WithDefaultSpeaker(id int) Option {
	return func(c *Client) {
		c.defaultSpeaker = id
	}
}

// WithOutputSamplingRate overrides the engine's synthesis output rate (e.g.,
// 48000). Zero (default) keeps whatever rate the engine's audio query carries,
// normally 24000.
func WithOutputSamplingRate(rate int) Option {
	return func(c *Client) {
		c.outputRate = rate
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// ---- Client ----

// Client implements tts.Synthesizer backed by a VOICEVOX engine. It is safe
// for concurrent use; each Synthesize call is an independent request pair.
type Client struct {
	serverURL      string
	httpClient     *http.Client
	defaultSpeaker int
	outputRate     int // target sample rate; 0 = engine default
}

// New creates a new Client that targets the engine at serverURL (e.g.,
// "http://localhost:50021"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("voicevox: serverURL must not be empty")
	}
	c := &Client{
		serverURL:      strings.TrimRight(serverURL, "/"),
		defaultSpeaker: DefaultSpeaker,
		httpClient:     &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ---- engine wire types ----

// audioQuery models the slice of the engine's audio query this package reads:
// phoneme timing for visemes plus the output rate. The full query JSON is
// re-posted raw so fields not modeled here survive the round trip.
type audioQuery struct {
	AccentPhrases      []accentPhrase `json:"accent_phrases"`
	PrePhonemeLength   float64        `json:"prePhonemeLength"`
	OutputSamplingRate int            `json:"outputSamplingRate"`
}

type accentPhrase struct {
	Moras     []mora `json:"moras"`
	PauseMora *mora  `json:"pause_mora"`
}

// mora timing fields are nullable in the engine schema: vowel-only morae
// carry null consonant entries.
type mora struct {
	Text            string   `json:"text"`
	Consonant       *string  `json:"consonant"`
	ConsonantLength *float64 `json:"consonant_length"`
	Vowel           string   `json:"vowel"`
	VowelLength     float64  `json:"vowel_length"`
}

// Speaker is one engine voice with its selectable styles.
type Speaker struct {
	Name   string  `json:"name"`
	UUID   string  `json:"speaker_uuid"`
	Styles []Style `json:"styles"`
}

// Style is a single variant of a speaker. ID is what Synthesize accepts as
// the speaker argument.
type Style struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// ---- Synthesize ----

// Synthesize runs the audio_query/synthesis pair and returns mono PCM plus
// the phoneme timing extracted from the query.
func (c *Client) Synthesize(ctx context.Context, text string, speaker int) (tts.Result, error) {
	if strings.TrimSpace(text) == "" {
		return tts.Result{}, errors.New("voicevox: text must not be empty")
	}
	if speaker < 0 {
		speaker = c.defaultSpeaker
	}

	queryJSON, err := c.audioQuery(ctx, text, speaker)
	if err != nil {
		return tts.Result{}, err
	}
	queryJSON, err = c.applyOutputRate(queryJSON)
	if err != nil {
		return tts.Result{}, err
	}

	var q audioQuery
	if err := json.Unmarshal(queryJSON, &q); err != nil {
		return tts.Result{}, fmt.Errorf("voicevox: parse audio query: %w", err)
	}

	wav, err := c.synthesis(ctx, queryJSON, speaker)
	if err != nil {
		return tts.Result{}, err
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		return tts.Result{}, fmt.Errorf("voicevox: parse WAV response: %w", err)
	}
	pcm := info.PCM(wav)
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}

	return tts.Result{
		Audio:      pcm,
		SampleRate: info.SampleRate,
		Phonemes:   toMetadata(q),
	}, nil
}

// audioQuery performs the first engine step and returns the raw query JSON.
func (c *Client) audioQuery(ctx context.Context, text string, speaker int) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	params.Set("speaker", strconv.Itoa(speaker))

	reqURL := c.serverURL + audioQueryEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create audio query request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", audioQueryEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", audioQueryEndpoint, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read audio query response: %w", err)
	}
	return body, nil
}

// applyOutputRate rewrites outputSamplingRate in the raw query JSON while
// leaving every other engine field untouched. Without an override the JSON
// passes through verbatim.
func (c *Client) applyOutputRate(queryJSON []byte) ([]byte, error) {
	if c.outputRate <= 0 {
		return queryJSON, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(queryJSON, &fields); err != nil {
		return nil, fmt.Errorf("voicevox: parse audio query: %w", err)
	}
	rate, err := json.Marshal(c.outputRate)
	if err != nil {
		return nil, fmt.Errorf("voicevox: encode output rate: %w", err)
	}
	fields["outputSamplingRate"] = rate
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("voicevox: re-encode audio query: %w", err)
	}
	return out, nil
}

// synthesis performs the second engine step and returns the WAV bytes.
func (c *Client) synthesis(ctx context.Context, queryJSON []byte, speaker int) ([]byte, error) {
	params := url.Values{}
	params.Set("speaker", strconv.Itoa(speaker))

	reqURL := c.serverURL + synthesisEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(queryJSON))
	if err != nil {
		return nil, fmt.Errorf("voicevox: create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: POST %s: %w", synthesisEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: POST %s returned status %d", synthesisEndpoint, resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("voicevox: read synthesis response: %w", err)
	}
	return wav, nil
}

// ---- ListSpeakers ----

// ListSpeakers retrieves the engine voice catalogue from GET /speakers.
func (c *Client) ListSpeakers(ctx context.Context) ([]Speaker, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+speakersEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("voicevox: create speakers request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voicevox: GET %s: %w", speakersEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voicevox: GET %s returned status %d", speakersEndpoint, resp.StatusCode)
	}

	var speakers []Speaker
	if err := json.NewDecoder(resp.Body).Decode(&speakers); err != nil {
		return nil, fmt.Errorf("voicevox: decode speakers response: %w", err)
	}
	return speakers, nil
}

// ---- viseme mapping ----

// toMetadata converts the engine query into the phoneme timing model used by
// the viseme timeline builder.
func toMetadata(q audioQuery) viseme.Metadata {
	md := viseme.Metadata{PrePhonemeLength: q.PrePhonemeLength}
	for _, ap := range q.AccentPhrases {
		phrase := viseme.Phrase{}
		for _, m := range ap.Moras {
			vm := viseme.Mora{
				Vowel:       m.Vowel,
				VowelLength: m.VowelLength,
			}
			if m.Consonant != nil {
				vm.Consonant = *m.Consonant
			}
			if m.ConsonantLength != nil {
				vm.ConsonantLength = *m.ConsonantLength
			}
			phrase.Moras = append(phrase.Moras, vm)
		}
		if ap.PauseMora != nil {
			phrase.Pause = &viseme.Mora{
				Vowel:       ap.PauseMora.Vowel,
				VowelLength: ap.PauseMora.VowelLength,
			}
		}
		md.Phrases = append(md.Phrases, phrase)
	}
	return md
}
