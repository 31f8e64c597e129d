package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/stageleft/convoke/pkg/provider/embeddings"
	"github.com/stageleft/convoke/pkg/provider/llm"
)

// ErrProviderNotRegistered is returned by the Create methods when no factory
// exists under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider of type T from its config entry.
type Factory[T any] func(ProviderEntry) (T, error)

// Registry maps provider names to factories, one namespace per provider
// kind. Safe for concurrent use; registrations under an existing name
// overwrite the previous factory.
type Registry struct {
	mu         sync.RWMutex
	llm        map[string]Factory[llm.Provider]
	embeddings map[string]Factory[embeddings.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:        make(map[string]Factory[llm.Provider]),
		embeddings: make(map[string]Factory[embeddings.Provider]),
	}
}

// RegisterLLM adds an LLM factory under name.
func (r *Registry) RegisterLLM(name string, f Factory[llm.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = f
}

// RegisterEmbeddings adds an embeddings factory under name.
func (r *Registry) RegisterEmbeddings(name string, f Factory[embeddings.Provider]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = f
}

// CreateLLM builds the LLM provider named by entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	f := r.llm[entry.Name]
	r.mu.RUnlock()
	return create("llm", f, entry)
}

// CreateEmbeddings builds the embeddings provider named by entry.Name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embeddings.Provider, error) {
	r.mu.RLock()
	f := r.embeddings[entry.Name]
	r.mu.RUnlock()
	return create("embeddings", f, entry)
}

// create runs the factory, mapping a missing registration to
// [ErrProviderNotRegistered]. A package function because methods cannot carry
// the type parameter.
func create[T any](kind string, f Factory[T], entry ProviderEntry) (T, error) {
	if f == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, entry.Name)
	}
	return f(entry)
}
