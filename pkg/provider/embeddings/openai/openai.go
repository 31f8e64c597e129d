// Package openai implements embeddings.Provider on the OpenAI embeddings
// API via the official Go SDK.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/stageleft/convoke/pkg/provider/embeddings"
)

// DefaultModel is used when no model is configured.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embeddings.Provider = (*Provider)(nil)

// Provider wraps one OpenAI embeddings model. Safe for concurrent use.
type Provider struct {
	client oai.Client
	model  string
}

// Option configures a [Provider].
type Option func(*settings)

type settings struct {
	baseURL string
	org     string
	timeout time.Duration
}

// WithBaseURL targets an OpenAI-compatible server instead of the public API.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization attaches an organization ID to every request.
func WithOrganization(org string) Option {
	return func(s *settings) { s.org = org }
}

// WithTimeout caps each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New creates a Provider. The API key is required; an empty model falls back
// to [DefaultModel].
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	var s settings
	for _, o := range opts {
		o(&s)
	}

	ropts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if s.baseURL != "" {
		ropts = append(ropts, option.WithBaseURL(s.baseURL))
	}
	if s.org != "" {
		ropts = append(ropts, option.WithOrganization(s.org))
	}
	if s.timeout > 0 {
		ropts = append(ropts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{client: oai.NewClient(ropts...), model: model}, nil
}

// Embed returns the vector for one text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings: empty response")
	}
	return narrow(resp.Data[0].Embedding), nil
}

// EmbedBatch embeds all texts in one request, restoring the input order from
// the per-item indices in the response.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := p.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: got %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", e.Index)
		}
		out[e.Index] = narrow(e.Embedding)
	}
	return out, nil
}

// Dimensions reports the model's output width.
func (p *Provider) Dimensions() int {
	m := strings.ToLower(p.model)
	switch {
	case strings.Contains(m, "text-embedding-3-large"):
		return 3072
	case strings.Contains(m, "text-embedding-3-small"),
		strings.Contains(m, "text-embedding-ada-002"):
		return 1536
	}
	// Unknown models are assumed to match the current small model.
	return 1536
}

// ModelID returns the configured model name.
func (p *Provider) ModelID() string {
	return p.model
}

// narrow converts the SDK's float64 vectors to the float32 the vector store
// expects.
func narrow(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
