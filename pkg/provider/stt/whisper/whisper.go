// Package whisper implements stt.Provider on top of the whisper.cpp CGO
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model file is loaded lazily on the first Transcribe call and shared by
// all subsequent calls. Inference runs through a fixed-size worker pool
// (default size 1) because each native context pins a full set of model
// buffers; queued calls wait their turn or bail out when their context ends.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/stageleft/convoke/pkg/provider/stt"
)

const (
	// defaultLanguage is used when neither the provider nor the request
	// specifies a language.
	defaultLanguage = "en"

	// defaultPoolSize is the number of concurrent native inference slots.
	defaultPoolSize = 1
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO).
type Provider struct {
	modelPath string
	language  string

	// sem is the inference worker pool. Its capacity bounds how many
	// native contexts exist at once.
	sem chan struct{}

	// loadOnce guards the lazy model load. A failed load is sticky: every
	// later call observes loadErr without retrying.
	loadOnce sync.Once

	// mu guards model and loadErr: health checks read them while a load or
	// Close is in flight.
	mu      sync.Mutex
	model   whisperlib.Model
	loadErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the default ISO 639-1 language code for transcription
// (e.g. "en", "sv"). Defaults to "en". A per-request language overrides it.
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithPoolSize sets the number of concurrent inference slots. Values below 1
// are ignored. Defaults to 1, which serialises all inference through a
// single native context at a time.
func WithPoolSize(n int) Option {
	return func(p *Provider) {
		if n >= 1 {
			p.sem = make(chan struct{}, n)
		}
	}
}

// New creates a Provider that will load the whisper.cpp model from the given
// file path on first use. The path is not checked here; a missing or corrupt
// model surfaces from the first Transcribe call. The caller must call Close
// when the provider is no longer needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &Provider{
		modelPath: modelPath,
		language:  defaultLanguage,
		sem:       make(chan struct{}, defaultPoolSize),
		closed:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Loaded reports whether the model has been loaded successfully. Health
// checks use this to distinguish "not warmed up yet" from "broken".
func (p *Provider) Loaded() bool {
	select {
	case <-p.closed:
		return false
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model != nil
}

// LoadErr returns the sticky model load error, or nil when the model loaded
// fine or has not been loaded yet. Like Loaded, reads are best-effort and
// meant for health reporting.
func (p *Provider) LoadErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Close releases the whisper model if it was loaded. Safe to call multiple
// times and concurrently with in-flight Transcribe calls, which drain first.
func (p *Provider) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		// Drain all pool slots so no inference is running on the model
		// while it is freed.
		for range cap(p.sem) {
			p.sem <- struct{}{}
		}
		p.mu.Lock()
		if p.model != nil {
			err = p.model.Close()
			p.model = nil
		}
		p.mu.Unlock()
	})
	return err
}

// Transcribe implements stt.Provider. It queues the call on the worker pool,
// lazily loads the model, decodes the recording to 16 kHz mono float32
// samples, and runs native inference.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	select {
	case <-p.closed:
		return "", errors.New("whisper: provider is closed")
	default:
	}

	// Acquire a pool slot, respecting the caller's deadline while queued.
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return "", fmt.Errorf("whisper: waiting for inference slot: %w", ctx.Err())
	case <-p.closed:
		return "", errors.New("whisper: provider is closed")
	}
	defer func() { <-p.sem }()

	if err := p.ensureModel(); err != nil {
		return "", fmt.Errorf("%w: %w", stt.ErrTranscriptionFailed, err)
	}

	samples, err := decodeAudio(req.Audio)
	if err != nil {
		return "", fmt.Errorf("%w: whisper: decode audio: %w", stt.ErrTranscriptionFailed, err)
	}
	if len(samples) == 0 {
		return "", nil
	}

	text, err := p.infer(samples, req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stt.ErrTranscriptionFailed, err)
	}
	return text, nil
}

// ensureModel loads the model exactly once. The load result, success or
// failure, is permanent for the provider's lifetime.
func (p *Provider) ensureModel() error {
	p.loadOnce.Do(func() {
		slog.Info("loading whisper model", "path", p.modelPath)
		model, err := whisperlib.New(p.modelPath)

		p.mu.Lock()
		if err != nil {
			p.loadErr = fmt.Errorf("whisper: load model %q: %w", p.modelPath, err)
		} else {
			p.model = model
		}
		p.mu.Unlock()

		if err == nil {
			slog.Info("whisper model loaded", "path", p.modelPath)
		}
	})
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text. Each context is NOT thread-safe, but the model
// can be shared across goroutines; the pool slot held by the caller keeps
// context count bounded.
func (p *Provider) infer(samples []float32, req stt.Request) (string, error) {
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "err", err)
	}
	if req.ContextPrompt != "" {
		wctx.SetInitialPrompt(req.ContextPrompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
