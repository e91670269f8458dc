package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrAllFailed wraps the errors of a [Group] call in which no backend
// succeeded.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Member is one backend of a [Group].
type Member[T any] struct {
	Name    string
	Value   T
	breaker *Breaker
}

// Observer is told about every attempt a [Group] makes, including attempts
// rejected by an open breaker.
type Observer func(ctx context.Context, provider string, d time.Duration, err error)

// Group tries its members in order until one succeeds.
type Group[T any] struct {
	members []*Member[T]
	cfg     BreakerConfig
	observe Observer
}

// NewGroup returns a group whose first member is primary.
func NewGroup[T any](name string, primary T, cfg BreakerConfig) *Group[T] {
	g := &Group[T]{cfg: cfg}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. It must not be called concurrently with [Do].
func (g *Group[T]) Add(name string, v T) {
	g.members = append(g.members, &Member[T]{Name: name, Value: v, breaker: NewBreaker(name, g.cfg)})
}

// Observe installs fn as the attempt observer.
func (g *Group[T]) Observe(fn Observer) { g.observe = fn }

// Primary returns the first member's value.
func (g *Group[T]) Primary() T { return g.members[0].Value }

// Names lists the members in the order they are tried.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.members))
	for i, m := range g.members {
		out[i] = m.Name
	}
	return out
}

// Breaker returns the breaker guarding the named member, or nil.
func (g *Group[T]) Breaker(name string) *Breaker {
	for _, m := range g.members {
		if m.Name == name {
			return m.breaker
		}
	}
	return nil
}

// Do calls fn with each member until one returns without error. It stops
// early when ctx is done. The returned error wraps [ErrAllFailed] and every
// attempt's error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(ctx context.Context, v T) (R, error)) (R, error) {
	var (
		zero R
		errs []error
	)
	for _, m := range g.members {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		var out R
		start := time.Now()
		err := m.breaker.Do(func() error {
			var err error
			out, err = fn(ctx, m.Value)
			return err
		})
		if g.observe != nil && !errors.Is(err, ErrCircuitOpen) {
			g.observe(ctx, m.Name, time.Since(start), err)
		}
		if err == nil {
			return out, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", m.Name, err))
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider with open circuit", "provider", m.Name)
		} else {
			slog.Warn("provider failed, trying next", "provider", m.Name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, errors.Join(errs...))
}
