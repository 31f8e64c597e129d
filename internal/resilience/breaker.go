// Package resilience guards calls to remote model APIs.
//
// A [Breaker] is a three-state circuit breaker: it passes calls through while
// the backend is healthy, rejects them outright after a run of failures, and
// lets a handful of probes through once the cooldown has passed. A [Chain]
// strings several backends of the same provider type together, each behind its
// own breaker, so the first healthy one serves the call.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned when a breaker rejects a call without attempting it.
var ErrOpen = errors.New("resilience: breaker open")

// Breaker states.
const (
	stateClosed = iota
	stateOpen
	stateHalfOpen
)

func stateName(s int) string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. The zero value gets usable defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureLimit is how many consecutive failures trip the breaker.
	// Default 5.
	FailureLimit int

	// Cooldown is how long a tripped breaker rejects calls before probing
	// the backend again. Default 30s.
	Cooldown time.Duration

	// ProbeLimit is how many probe calls the half-open state admits. The
	// breaker closes again once that many probes succeed; a single probe
	// failure re-trips it. Default 3.
	ProbeLimit int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureLimit <= 0 {
		c.FailureLimit = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.ProbeLimit <= 0 {
		c.ProbeLimit = 3
	}
	return c
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	cfg BreakerConfig

	mu         sync.Mutex
	state      int
	failures   int       // consecutive failures while closed
	trippedAt  time.Time // when the breaker last opened
	probes     int       // probes admitted while half-open
	probeFails int       // probes failed while half-open
}

// NewBreaker creates a closed [Breaker].
func NewBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.withDefaults()}
}

// Do runs fn unless the breaker is open. While open it returns [ErrOpen]
// immediately; once the cooldown has elapsed it admits up to ProbeLimit
// probes and closes again when they all succeed.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	callErr := fn()
	b.settle(probe, callErr)
	return callErr
}

// admit decides whether a call may proceed and reports whether it counts as a
// half-open probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if time.Since(b.trippedAt) < b.cfg.Cooldown {
			return false, ErrOpen
		}
		b.state = stateHalfOpen
		b.probes = 0
		b.probeFails = 0
		slog.Info("breaker probing backend", "name", b.cfg.Name)
	}

	if b.state == stateHalfOpen {
		if b.probes >= b.cfg.ProbeLimit {
			// Probe budget spent, earlier probes have not settled yet.
			return false, ErrOpen
		}
		b.probes++
		return true, nil
	}
	return false, nil
}

// settle records the outcome of an admitted call.
func (b *Breaker) settle(probe bool, callErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if callErr == nil {
		if !probe {
			b.failures = 0
			return
		}
		if b.probes-b.probeFails >= b.cfg.ProbeLimit {
			b.state = stateClosed
			b.failures = 0
			slog.Info("breaker closed", "name", b.cfg.Name)
		}
		return
	}

	if probe {
		// One bad probe sends the breaker straight back to open.
		b.probeFails++
		b.state = stateOpen
		b.trippedAt = time.Now()
		slog.Warn("breaker re-tripped by failed probe", "name", b.cfg.Name)
		return
	}

	b.failures++
	b.trippedAt = time.Now()
	if b.failures >= b.cfg.FailureLimit {
		b.state = stateOpen
		slog.Warn("breaker tripped", "name", b.cfg.Name, "failures", b.failures)
	}
}

// State reports the breaker's current state as a string, for logs and tests.
// An open breaker whose cooldown has passed reports "half-open" even though
// the transition itself happens on the next [Breaker.Do].
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen && time.Since(b.trippedAt) >= b.cfg.Cooldown {
		return stateName(stateHalfOpen)
	}
	return stateName(b.state)
}

// Reset forces the breaker back to closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = stateClosed
	b.failures = 0
	b.probes = 0
	b.probeFails = 0
}
