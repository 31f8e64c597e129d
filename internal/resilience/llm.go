package resilience

import (
	"context"

	"github.com/stageleft/convoke/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over a [Chain] of LLM backends. The
// analyzer, coach, and protocol generator all talk to the model through one
// of these so a dead API fails fast instead of stalling the chunk pipeline.
type LLMFallback struct {
	chain *Chain[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback wraps primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{chain: NewChain(primary, primaryName, cfg)}
}

// AddFallback registers another backend, tried when earlier ones fail.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.chain.Add(name, provider)
}

// Complete implements [llm.Provider].
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Call(f.chain, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}
