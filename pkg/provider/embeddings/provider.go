// Package embeddings defines the Embedder interface for vector embedding
// backends.
//
// An embedder wraps a service that maps text strings to dense float32
// vectors (e.g., OpenAI text-embedding-3 or a local model served by Ollama).
// The history layer uses these vectors to recall past conversation exchanges
// that are semantically close to what the learner just said, even when no
// words overlap.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Embedder is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Embedder instance share the same
// dimensionality (returned by Dimensions). Vectors from different Embedder
// instances must not be mixed in one similarity computation unless both use
// the same model and space.
//
// Implementations must be safe for concurrent use.
type Embedder interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled.
	//
	// Text is passed through verbatim; any model-specific formatting (such as
	// a "query: " prefix for retrieval models) is the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// backend call, which is typically far cheaper than calling Embed in a
	// loop. The returned slice has the same length as texts and the i-th
	// element corresponds to texts[i].
	//
	// Returns an error if any single embedding fails or if ctx is cancelled.
	// Partial results are not returned — on error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// embedder. The value is determined by the underlying model and is
	// constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the backend-specific model identifier
	// (e.g., "text-embedding-3-small", "nomic-embed-text"). Useful for
	// logging and for pinning an archive to the model that filled it.
	ModelID() string
}
