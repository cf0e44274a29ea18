package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/taiwalabs/taiwa/pkg/provider/embeddings"
	"github.com/taiwalabs/taiwa/pkg/provider/llm"
	"github.com/taiwalabs/taiwa/pkg/provider/stt"
	"github.com/taiwalabs/taiwa/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// pipeline stage. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	recognizer  map[string]func(ProviderEntry) (stt.Recognizer, error)
	responder   map[string]func(ProviderEntry) (llm.Responder, error)
	synthesizer map[string]func(ProviderEntry) (tts.Synthesizer, error)
	embeddings  map[string]func(ProviderEntry) (embeddings.Embedder, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizer:  make(map[string]func(ProviderEntry) (stt.Recognizer, error)),
		responder:   make(map[string]func(ProviderEntry) (llm.Responder, error)),
		synthesizer: make(map[string]func(ProviderEntry) (tts.Synthesizer, error)),
		embeddings:  make(map[string]func(ProviderEntry) (embeddings.Embedder, error)),
	}
}

// RegisterRecognizer registers a speech recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(ProviderEntry) (stt.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[name] = factory
}

// RegisterResponder registers a coach responder factory under name.
func (r *Registry) RegisterResponder(name string, factory func(ProviderEntry) (llm.Responder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responder[name] = factory
}

// RegisterSynthesizer registers a speech synthesizer factory under name.
func (r *Registry) RegisterSynthesizer(name string, factory func(ProviderEntry) (tts.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synthesizer[name] = factory
}

// RegisterEmbeddings registers an embeddings provider factory under name.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embeddings.Embedder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// CreateRecognizer instantiates a recognizer using the factory registered
// under entry.Name. Returns [ErrProviderNotRegistered] if no factory has been
// registered for that name.
func (r *Registry) CreateRecognizer(entry ProviderEntry) (stt.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateResponder instantiates a responder using the factory registered under entry.Name.
func (r *Registry) CreateResponder(entry ProviderEntry) (llm.Responder, error) {
	r.mu.RLock()
	factory, ok := r.responder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: responder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynthesizer instantiates a synthesizer using the factory registered under entry.Name.
func (r *Registry) CreateSynthesizer(entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synthesizer[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synthesizer/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateEmbeddings instantiates an embeddings provider using the factory registered under entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Embedder, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
