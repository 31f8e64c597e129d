// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to script transcription results and inspect the requests the
// caller made:
//
//	p := &mock.Provider{Results: []string{"hello", "world"}}
//	text, _ := p.Transcribe(ctx, stt.Request{Audio: audio})
package mock

import (
	"context"
	"sync"

	"github.com/stageleft/convoke/pkg/provider/stt"
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider is a scripted stt.Provider. The zero value returns empty
// transcripts for every call.
type Provider struct {
	mu sync.Mutex

	// Results are returned in order by successive Transcribe calls. Once
	// exhausted, further calls return the last result (or "" if empty).
	Results []string

	// Err, when non-nil, is returned by every Transcribe call.
	Err error

	// TranscribeFunc, when non-nil, overrides Results and Err entirely.
	TranscribeFunc func(ctx context.Context, req stt.Request) (string, error)

	// Calls records every request passed to Transcribe.
	Calls []stt.Request

	closed bool
	calls  int
}

// Transcribe records the request and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	n := p.calls
	p.calls++
	fn := p.TranscribeFunc
	err := p.Err
	results := p.Results
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}
	if n >= len(results) {
		n = len(results) - 1
	}
	return results[n], nil
}

// Close marks the provider closed.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *Provider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// CallCount returns how many times Transcribe was invoked.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
