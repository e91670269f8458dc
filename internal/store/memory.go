package store

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/ispitch/pkg/analysis"
)

// MemStore is an in-memory [Store]. Stored analyses are deep copies, so
// callers may keep mutating the values they pass in or get back.
type MemStore struct {
	mu   sync.RWMutex
	byID map[string]*analysis.Analysis
	now  func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]*analysis.Analysis), now: time.Now}
}

// Save inserts or replaces a. The original creation time is kept when a
// replaces an existing analysis. A terminal analysis is not replaced and
// Save returns [ErrFinalized].
func (m *MemStore) Save(_ context.Context, a *analysis.Analysis) (*analysis.Analysis, error) {
	cp, err := clone(a)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.byID[a.ID]; ok {
		if prev.Status.IsTerminal() {
			return nil, fmt.Errorf("store: save %q: %w", a.ID, ErrFinalized)
		}
		cp.CreatedAt = prev.CreatedAt
	}
	m.byID[a.ID] = cp
	return clone(cp)
}

// FindByID returns the analysis with id or [ErrNotFound].
func (m *MemStore) FindByID(_ context.Context, id string) (*analysis.Analysis, error) {
	m.mu.RLock()
	a, ok := m.byID[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a)
}

// ListByUser implements [Store].
func (m *MemStore) ListByUser(_ context.Context, userID string, page, pageSize int) ([]analysis.Summary, int, error) {
	all := m.userAnalyses(userID)
	start := min(offset(page, pageSize), len(all))
	end := min(start+pageSize, len(all))

	out := make([]analysis.Summary, 0, end-start)
	for _, a := range all[start:end] {
		out = append(out, analysis.Summarize(a))
	}
	return out, len(all), nil
}

// FindRecentByUser implements [Store].
func (m *MemStore) FindRecentByUser(_ context.Context, userID string) (*analysis.Summary, error) {
	all := m.userAnalyses(userID)
	if len(all) == 0 {
		return nil, ErrNotFound
	}
	s := analysis.Summarize(all[0])
	return &s, nil
}

// Stats implements [Store].
func (m *MemStore) Stats(_ context.Context, userID string, r analysis.TimeRange) (analysis.Stats, error) {
	since, bounded := r.Since(m.now())
	var items []analysis.StatsInput
	for _, a := range m.userAnalyses(userID) {
		if a.Status != analysis.StatusCompleted {
			continue
		}
		if bounded && a.CreatedAt.Before(since) {
			continue
		}
		items = append(items, statsInput(a))
	}
	return analysis.BuildStats(r, items), nil
}

// Ping always succeeds.
func (m *MemStore) Ping(context.Context) error { return nil }

// userAnalyses returns the user's analyses, newest first. The returned
// pointers are shared and must not be mutated.
func (m *MemStore) userAnalyses(userID string) []*analysis.Analysis {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*analysis.Analysis
	for _, a := range m.byID {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b *analysis.Analysis) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func statsInput(a *analysis.Analysis) analysis.StatsInput {
	in := analysis.StatsInput{CreatedAt: a.CreatedAt}
	if a.SpeechAnalysis != nil {
		in.FillerWords = a.SpeechAnalysis.FillerWordsAnalysis.Total
	}
	if a.AudioAnalysis != nil {
		in.Duration = a.AudioAnalysis.Duration
	}
	return in
}

// clone deep-copies a through its JSON form, which is also how the
// postgres store round-trips it.
func clone(a *analysis.Analysis) (*analysis.Analysis, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("store: copy analysis: %w", err)
	}
	var cp analysis.Analysis
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("store: copy analysis: %w", err)
	}
	return &cp, nil
}

var _ Store = (*MemStore)(nil)
