// Package ollama implements embeddings.Provider against a local Ollama
// server's /api/embed endpoint. Suitable models include nomic-embed-text,
// mxbai-embed-large, and all-minilm.
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

	"github.com/stageleft/convoke/pkg/provider/embeddings"
)

// DefaultBaseURL points at an Ollama server on its standard local port.
const DefaultBaseURL = "http://localhost:11434"

var _ embeddings.Provider = (*Provider)(nil)

// Provider talks to one Ollama embedding model. Safe for concurrent use.
//
// The vector width reported by Dimensions comes from, in order: the
// WithDimensions option, a table of recognised model names, or a one-off
// probe request whose result is cached.
type Provider struct {
	baseURL string
	model   string
	client  *http.Client

	dims      int
	probeOnce sync.Once
}

// Option configures a [Provider].
type Option func(*Provider)

// WithTimeout caps each HTTP request. Zero or negative leaves requests
// unbounded except by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.client.Timeout = d
		}
	}
}

// WithDimensions fixes the reported vector width, skipping both the model
// table and the probe request.
func WithDimensions(n int) Option {
	return func(p *Provider) { p.dims = n }
}

// New creates a Provider for the given server and model. An empty baseURL
// means [DefaultBaseURL]; model is required.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("ollama: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if p.dims == 0 {
		p.dims = modelDimensions(model)
	}
	return p, nil
}

// Embed returns the vector for a single text. Model-specific prefixes such
// as nomic's "query: " are the caller's concern; the text goes over the wire
// untouched.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.post(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. result[i] matches texts[i]; on
// error no partial results are returned. Empty input is a no-op.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := p.post(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama: embed batch: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("ollama: embed batch: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimensions reports the model's vector width. Unknown models trigger a
// single probe request; if the probe fails, 0 is returned and the probe is
// not retried.
func (p *Provider) Dimensions() int {
	if p.dims != 0 {
		return p.dims
	}
	p.probeOnce.Do(func() {
		vecs, err := p.post(context.Background(), []string{"probe"})
		if err == nil && len(vecs) > 0 {
			p.dims = len(vecs[0])
		}
	})
	return p.dims
}

// ModelID returns the configured Ollama model name.
func (p *Provider) ModelID() string {
	return p.model
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// post sends one /api/embed call and returns the raw vectors. A successful
// response always carries at least one vector.
func (p *Provider) post(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings in response")
	}
	return out.Embeddings, nil
}

// modelDimensions knows the output width of common Ollama embedding models.
// Unknown models return 0 and get probed on first use.
func modelDimensions(model string) int {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "nomic-embed-text"):
		return 768
	case strings.Contains(m, "mxbai-embed-large"):
		return 1024
	case strings.Contains(m, "all-minilm"):
		return 384
	}
	return 0
}
