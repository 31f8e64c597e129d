// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider to script completion responses and inspect the requests the
// caller made:
//
//	p := &mock.Provider{Responses: []string{`{"triggers": []}`}}
//	resp, _ := p.Complete(ctx, llm.CompletionRequest{...})
package mock

import (
	"context"
	"sync"

	"github.com/stageleft/convoke/pkg/provider/llm"
)

// Compile-time assertion that Provider satisfies llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a scripted llm.Provider. The zero value returns empty
// responses for every call.
type Provider struct {
	mu sync.Mutex

	// Responses are returned in order by successive Complete calls. Once
	// exhausted, further calls return the last response (or "" if empty).
	Responses []string

	// Err, when non-nil, is returned by every Complete call.
	Err error

	// CompleteFunc, when non-nil, overrides Responses and Err entirely.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Calls records every request passed to Complete.
	Calls []llm.CompletionRequest

	calls int
}

// Complete records the request and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	n := p.calls
	p.calls++
	fn := p.CompleteFunc
	err := p.Err
	responses := p.Responses
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	content := ""
	if len(responses) > 0 {
		if n >= len(responses) {
			n = len(responses) - 1
		}
		content = responses[n]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns how many times Complete was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastRequest returns the most recent request, or a zero request if none.
func (p *Provider) LastRequest() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.Calls[len(p.Calls)-1]
}
