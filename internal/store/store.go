// Package store persists analyses.
//
// [PostgresStore] is the production backend: identity and status live in
// columns, the nested measurements in JSONB. [MemStore] keeps everything in
// process for tests and single-node development setups.
package store

import (
	"context"
	"errors"

	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// ErrNotFound is returned when no analysis matches a lookup.
var ErrNotFound = errors.New("store: analysis not found")

// ErrFinalized is returned by Save when the stored analysis is already
// COMPLETED or FAILED. Terminal records are never overwritten.
var ErrFinalized = errors.New("store: analysis already finalized")

// Store is the full repository contract used by the API. It extends the
// pipeline's [pipeline.Repository] with the user-facing queries.
type Store interface {
	pipeline.Repository

	// ListByUser returns one page (1-based) of the user's analyses, newest
	// first, together with the total number of analyses the user owns.
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]analysis.Summary, int, error)

	// FindRecentByUser returns the user's newest analysis.
	FindRecentByUser(ctx context.Context, userID string) (*analysis.Summary, error)

	// Stats aggregates the user's completed analyses within r.
	Stats(ctx context.Context, userID string, r analysis.TimeRange) (analysis.Stats, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// offset converts a 1-based page into a row offset. Non-positive pages are
// treated as the first page.
func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
