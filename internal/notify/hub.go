package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// ErrClosed is returned by operations on a closed broker.
var ErrClosed = errors.New("notify: broker closed")

// Hub is an in-process [Broker]. The zero value is not usable; call
// [NewHub].
type Hub struct {
	buffer int

	mu     sync.Mutex
	subs   map[string]map[*hubSub]struct{}
	closed bool
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber buffer size.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		buffer: DefaultBuffer,
		subs:   make(map[string]map[*hubSub]struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish fans ev out to every current subscriber of analysisID without
// blocking. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(_ context.Context, analysisID string, ev analysis.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for s := range h.subs[analysisID] {
		select {
		case s.ch <- ev:
		default:
			slog.Warn("notify: subscriber buffer full, event dropped",
				slog.String("analysis_id", analysisID),
				slog.String("event", string(ev.Event)),
			)
		}
	}
	return nil
}

// Subscribe registers a new subscriber for analysisID.
func (h *Hub) Subscribe(_ context.Context, analysisID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	s := &hubSub{hub: h, id: analysisID, ch: make(chan analysis.Event, h.buffer)}
	set, ok := h.subs[analysisID]
	if !ok {
		set = make(map[*hubSub]struct{})
		h.subs[analysisID] = set
	}
	set[s] = struct{}{}
	return s, nil
}

// Subscribers returns the number of live subscriptions for analysisID.
func (h *Hub) Subscribers(analysisID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[analysisID])
}

// Ping fails once the hub is closed.
func (h *Hub) Ping(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, set := range h.subs {
		for s := range set {
			close(s.ch)
		}
		delete(h.subs, id)
	}
	return nil
}

func (h *Hub) remove(s *hubSub) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.id]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	close(s.ch)
	if len(set) == 0 {
		delete(h.subs, s.id)
	}
}

type hubSub struct {
	hub *Hub
	id  string
	ch  chan analysis.Event
}

func (s *hubSub) Events() <-chan analysis.Event { return s.ch }

func (s *hubSub) Close() error {
	s.hub.remove(s)
	return nil
}

var _ Broker = (*Hub)(nil)
