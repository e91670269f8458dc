// Package mock provides test doubles for the pipeline ports that have no
// richer fake elsewhere: Notifier, Storage and Repository.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// PublishCall records a single Notifier.Publish invocation.
type PublishCall struct {
	AnalysisID string
	Event      analysis.Event
}

// Notifier is a mock implementation of pipeline.Notifier.
type Notifier struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every Publish call. The event is
	// still recorded.
	Err error

	Calls []PublishCall
}

// Publish records the event.
func (n *Notifier) Publish(_ context.Context, analysisID string, ev analysis.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Calls = append(n.Calls, PublishCall{AnalysisID: analysisID, Event: ev})
	return n.Err
}

// Events returns a copy of the published events in order.
func (n *Notifier) Events() []analysis.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]analysis.Event, len(n.Calls))
	for i, c := range n.Calls {
		out[i] = c.Event
	}
	return out
}

// Statuses returns the statuses of the published status_update events.
func (n *Notifier) Statuses() []analysis.Status {
	var out []analysis.Status
	for _, ev := range n.Events() {
		if ev.Event != analysis.EventStatusUpdate {
			continue
		}
		if s, err := ev.Status(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// Storage is a mock implementation of pipeline.Storage.
type Storage struct {
	mu sync.Mutex

	Err   error
	Paths []string
}

// CleanupTemporaryFile records path.
func (s *Storage) CleanupTemporaryFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Paths = append(s.Paths, path)
	return s.Err
}

// CallCount returns the number of cleanup calls.
func (s *Storage) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Paths)
}

// Repository is a mock implementation of pipeline.Repository.
type Repository struct {
	mu sync.Mutex

	// SaveErr, if set, is called with each analysis and its result returned
	// from Save. Returning nil lets the save succeed.
	SaveErr func(a *analysis.Analysis) error

	// FindErr is returned by FindByID when non-nil.
	FindErr error

	Saved []*analysis.Analysis
}

// Save records a copy of a.
func (r *Repository) Save(_ context.Context, a *analysis.Analysis) (*analysis.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.SaveErr != nil {
		if err := r.SaveErr(a); err != nil {
			return nil, err
		}
	}
	cp := *a
	r.Saved = append(r.Saved, &cp)
	return &cp, nil
}

// FindByID returns the most recently saved analysis with id, or nil.
func (r *Repository) FindByID(_ context.Context, id string) (*analysis.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FindErr != nil {
		return nil, r.FindErr
	}
	for i := len(r.Saved) - 1; i >= 0; i-- {
		if r.Saved[i].ID == id {
			cp := *r.Saved[i]
			return &cp, nil
		}
	}
	return nil, nil
}

// LastSaved returns the most recent Save argument, or nil.
func (r *Repository) LastSaved() *analysis.Analysis {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Saved) == 0 {
		return nil
	}
	return r.Saved[len(r.Saved)-1]
}

var (
	_ pipeline.Notifier   = (*Notifier)(nil)
	_ pipeline.Storage    = (*Storage)(nil)
	_ pipeline.Repository = (*Repository)(nil)
)
