package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrExhausted is returned when every backend in a [Chain] either failed or
// had an open breaker.
var ErrExhausted = errors.New("resilience: all backends failed")

// FallbackConfig configures the breaker created for each backend in a [Chain].
type FallbackConfig struct {
	CircuitBreaker BreakerConfig
}

type link[T any] struct {
	name    string
	backend T
	breaker *Breaker
}

// Chain holds a primary backend and zero or more fallbacks of the same
// provider type, each behind its own [Breaker]. Backends are tried in the
// order they were added. A chain with a single backend still earns its keep:
// the primary's breaker stops a flapping backend from eating every call's
// timeout.
//
// Fallbacks must be added before the chain is shared between goroutines.
type Chain[T any] struct {
	links []link[T]
	cfg   FallbackConfig
}

// NewChain creates a [Chain] with primary as its first backend.
func NewChain[T any](primary T, name string, cfg FallbackConfig) *Chain[T] {
	c := &Chain[T]{cfg: cfg}
	c.Add(name, primary)
	return c
}

// Add appends a fallback backend, tried after all earlier entries.
func (c *Chain[T]) Add(name string, backend T) {
	bc := c.cfg.CircuitBreaker
	bc.Name = name
	c.links = append(c.links, link[T]{
		name:    name,
		backend: backend,
		breaker: NewBreaker(bc),
	})
}

// Call tries fn against each backend in order until one succeeds. Backends
// with an open breaker are skipped without a log entry beyond debug level.
// When every backend fails, the last error is wrapped in [ErrExhausted].
//
// Call is a package-level function because methods cannot introduce the
// result type parameter R.
func Call[T, R any](c *Chain[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range c.links {
		l := &c.links[i]
		var out R
		err := l.breaker.Do(func() error {
			var callErr error
			out, callErr = fn(l.backend)
			return callErr
		})
		if err == nil {
			return out, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping backend, breaker open", "backend", l.name)
		} else {
			slog.Warn("backend failed", "backend", l.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}
