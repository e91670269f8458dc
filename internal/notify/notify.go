// Package notify carries analysis progress events from the worker running an
// analysis to the clients streaming it.
//
// Two brokers are provided: [Hub], an in-process fan-out for single-node
// deployments, and [Redis], which uses Redis pub/sub so API and worker
// processes can be scaled separately. Both deliver at most once: an event
// published while nobody is subscribed, or to a subscriber that is not
// keeping up, is dropped.
package notify

import (
	"context"

	"github.com/MrWong99/ispitch/internal/pipeline"
	"github.com/MrWong99/ispitch/pkg/analysis"
)

// Subscription is a live stream of the events of one analysis.
type Subscription interface {
	// Events is closed when the subscription ends.
	Events() <-chan analysis.Event

	// Close ends the subscription. It is safe to call more than once.
	Close() error
}

// Broker publishes and subscribes to per-analysis event streams.
type Broker interface {
	pipeline.Notifier

	// Subscribe starts receiving events for analysisID. Events published
	// before Subscribe returns are not delivered.
	Subscribe(ctx context.Context, analysisID string) (Subscription, error)

	// Ping reports whether the broker is usable.
	Ping(ctx context.Context) error

	Close() error
}

// Channel returns the pub/sub channel name for analysisID.
func Channel(analysisID string) string {
	return "analysis:" + analysisID
}

// DefaultBuffer is the per-subscriber event buffer.
const DefaultBuffer = 16
