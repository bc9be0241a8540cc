// Package publish pushes the result documents to their outward-facing home.
// The queue only cares about the boolean outcome: a false return re-queues
// the job, it never fails it.
package publish

import (
	"context"
	"log"
)

type Publisher interface {
	// Publish makes the given files visible to the outside world. It returns
	// false on any failure; the detailed cause stays in the logs.
	Publish(ctx context.Context, paths []string, message string) bool
}

// NoopPublisher is used for dry runs and when no publish target is configured.
type NoopPublisher struct{}

func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (p *NoopPublisher) Publish(_ context.Context, paths []string, message string) bool {
	log.Printf("publish (noop): %d files, message %q", len(paths), message)
	return true
}
