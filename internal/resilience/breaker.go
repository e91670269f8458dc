// Package resilience keeps analyses going when a transcription or LLM
// backend misbehaves.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Group] orders a primary backend and its fallbacks, each behind its own
// breaker, and [Transcriber] and [LLM] apply a Group to the provider
// interfaces.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the mode of a [Breaker].
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int
	// Cooldown is how long the breaker stays open. Default 30s.
	Cooldown time.Duration
	// Probes successful half-open calls close the breaker again. Default 2.
	Probes int
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 30 * time.Second
	}
	if c.Probes <= 0 {
		c.Probes = 2
	}
	return c
}

// Breaker stops calling a backend after repeated failures and lets a few
// probe calls through once the cooldown has passed.
//
// A call that fails only because its caller gave up (context.Canceled) does
// not count against the backend.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inflight int // half-open probes not yet finished
	passed   int // half-open probes that succeeded
}

// NewBreaker returns a closed breaker. name appears in logs.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.acquire()
	if err != nil {
		return err
	}
	err = fn()
	b.release(probe, err)
	return err
}

// State reports the current mode. An open breaker whose cooldown elapsed
// reports half-open.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(StateClosed)
}

func (b *Breaker) acquire() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inflight+b.passed >= b.cfg.Probes {
			return false, ErrCircuitOpen
		}
		b.inflight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) release(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.inflight > 0 {
		b.inflight--
	}
	if errors.Is(err, context.Canceled) {
		return
	}

	if err != nil {
		if probe || b.state == StateHalfOpen {
			b.setState(StateOpen)
			slog.Warn("circuit re-opened after failed probe", "provider", b.name, "err", err)
			return
		}
		b.failures++
		if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
			b.setState(StateOpen)
			slog.Warn("circuit opened", "provider", b.name, "failures", b.failures, "cooldown", b.cfg.Cooldown)
		}
		return
	}

	if !probe {
		b.failures = 0
		return
	}
	if b.state != StateHalfOpen {
		return
	}
	b.passed++
	if b.passed >= b.cfg.Probes {
		b.setState(StateClosed)
		slog.Info("circuit closed", "provider", b.name)
	}
}

// setState must be called with b.mu held.
func (b *Breaker) setState(s State) {
	b.state = s
	b.inflight = 0
	b.passed = 0
	switch s {
	case StateOpen:
		b.openedAt = b.now()
	case StateClosed:
		b.failures = 0
	}
}
