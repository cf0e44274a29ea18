// Package ollama provides an embedder backed by a local Ollama server.
//
// Ollama (https://ollama.com) hosts local language and embedding models.
// This package uses the native /api/embed endpoint to generate dense float32
// vectors with models such as nomic-embed-text, mxbai-embed-large, and
// all-minilm.
//
// Example usage:
//
//	e, err := ollama.New("", "nomic-embed-text") // connects to http://localhost:11434
//	if err != nil {
//	    log.Fatal(err)
//	}
//	vec, err := e.Embed(ctx, "query: こんにちは")
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/taiwalabs/taiwa/pkg/provider/embeddings"
)

// DefaultBaseURL is the default base URL for a locally running Ollama instance.
const DefaultBaseURL = "http://localhost:11434"

// Ensure Embedder implements the embeddings.Embedder interface at compile time.
var _ embeddings.Embedder = (*Embedder)(nil)

// Embedder implements embeddings.Embedder using a local Ollama server.
//
// Dimension resolution happens in this order:
//  1. Value supplied via WithDimensions option (highest priority).
//  2. Look-up in the built-in knownDimensions table for recognised model names.
//  3. Auto-detection: a single probe embed is issued on the first Dimensions
//     call and the length of the returned vector is cached for the lifetime
//     of the Embedder.
//
// Embedder is safe for concurrent use.
type Embedder struct {
	baseURL    string
	model      string
	httpClient *http.Client

	// dimensions holds the resolved vector length. When zero after
	// construction, it is populated lazily by detectOnce.
	dimensions int
	detectOnce sync.Once
	detectErr  error
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout    time.Duration
	dimensions int
}

// Option is a functional option for Embedder.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default).
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithDimensions pre-sets the embedding dimension, bypassing the look-up
// table and avoiding the probe request that Dimensions() would otherwise
// issue for unknown models on first call.
func WithDimensions(dims int) Option {
	return func(c *config) {
		c.dimensions = dims
	}
}

// New constructs a new Ollama Embedder.
//
// baseURL is the base URL of the Ollama server. If empty, DefaultBaseURL is
// used. A trailing slash is stripped automatically.
//
// model is the Ollama model name to use for embeddings
// (e.g., "nomic-embed-text"). It must not be empty.
func New(baseURL string, model string, opts ...Option) (*Embedder, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	e := &Embedder{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		dimensions: cfg.dimensions,
	}

	// Pre-populate from the known-models table when no explicit dimension
	// was provided, to avoid a probe request for well-known models.
	if e.dimensions == 0 {
		e.dimensions = knownDimensions(model)
	}

	return e, nil
}

// embedRequest is the JSON request body sent to Ollama's /api/embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the JSON response body returned by Ollama's /api/embed endpoint.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements embeddings.Embedder by computing the embedding vector for
// a single text string.
//
// The text is forwarded verbatim to Ollama. Any model-specific prompt
// formatting (e.g., a "query: " prefix required by nomic-embed-text) is the
// caller's responsibility.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.callEmbed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ollama embeddings: embed: empty response")
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Embedder by computing embedding vectors
// for a slice of texts in a single Ollama /api/embed request.
//
// The returned slice has the same length as texts and is ordered identically.
// On any error, nil is returned — partial results are not exposed. Passing a
// nil or empty texts slice returns (nil, nil) without a network request.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.callEmbed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama embeddings: embed batch: expected %d embeddings, got %d", len(texts), len(vecs))
	}
	return vecs, nil
}

// Dimensions implements embeddings.Embedder by returning the fixed vector
// length produced by this embedder.
//
// The value is resolved in the following order:
//  1. Explicitly configured value (via WithDimensions).
//  2. Built-in table for known model names (nomic-embed-text → 768, etc.).
//  3. Auto-detection: a probe embed is issued once against the live server
//     and the dimension is inferred from the vector length. The result is
//     cached; if the probe fails, 0 is returned.
func (e *Embedder) Dimensions() int {
	if e.dimensions != 0 {
		return e.dimensions
	}
	e.detectOnce.Do(func() {
		vecs, err := e.callEmbed(context.Background(), []string{"probe"})
		if err != nil {
			e.detectErr = err
			return
		}
		if len(vecs) > 0 {
			e.dimensions = len(vecs[0])
		}
	})
	return e.dimensions
}

// ModelID implements embeddings.Embedder by returning the Ollama model name
// supplied at construction time.
func (e *Embedder) ModelID() string {
	return e.model
}

// callEmbed sends a POST /api/embed request to the Ollama server and returns
// the raw embedding vectors.
func (e *Embedder) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("empty embeddings in response")
	}
	return result.Embeddings, nil
}

// knownDimensions returns the well-known output dimension for recognised
// Ollama embedding model names. Returns 0 for unknown models, which triggers
// auto-detection on the first Dimensions() call.
func knownDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "nomic-embed-text"):
		return 768
	case strings.Contains(lower, "mxbai-embed-large"):
		return 1024
	case strings.Contains(lower, "all-minilm"):
		return 384
	default:
		return 0
	}
}
