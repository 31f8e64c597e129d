// Package mock provides a scripted test double for embeddings.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/stageleft/convoke/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// Provider returns canned vectors and records the texts it was asked to
// embed. The zero value embeds everything to an empty vector.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed for every text.
	EmbedResult []float32

	// EmbedErr, when set, is returned by both Embed and EmbedBatch.
	EmbedErr error

	// EmbedBatchResult overrides the default EmbedBatch behaviour of
	// repeating EmbedResult once per text.
	EmbedBatchResult [][]float32

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// Texts collects every string passed to Embed or EmbedBatch, in call
	// order.
	Texts []string
}

// Embed records text and returns the scripted vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return p.EmbedResult, nil
}

// EmbedBatch records texts and returns one scripted vector per input.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Texts = append(p.Texts, texts...)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if p.EmbedBatchResult != nil {
		return p.EmbedBatchResult, nil
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = p.EmbedResult
	}
	return out, nil
}

// Dimensions returns the scripted vector width.
func (p *Provider) Dimensions() int {
	return p.DimensionsValue
}

// ModelID returns the scripted model name.
func (p *Provider) ModelID() string {
	if p.ModelIDValue == "" {
		return "mock-embeddings"
	}
	return p.ModelIDValue
}
