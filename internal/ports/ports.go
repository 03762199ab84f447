package ports

import (
	"context"

	"duedil/internal/domain"
)

// Subject identifies one generation run's company: the numeric id addresses
// the socket path, the URL is the stable external key for REST lookups.
type Subject struct {
	ID  int64
	URL string
}

// Sink receives live-update events for one subject. Events stop once the
// profile reaches a terminal status. The subject is echoed back so consumers
// can discard events from a subscription they no longer track.
type Sink interface {
	OnSnapshot(sub Subject, snap domain.Snapshot)
	OnLog(sub Subject, entry domain.LogEntry)
	OnFinal(sub Subject, snap domain.Snapshot)
}

// Channel delivers profile snapshots and log lines to a sink until the
// profile reaches a terminal state, then stops. Run blocks until terminal
// delivery or context cancellation; cancelling the context releases every
// timer and connection the channel holds.
type Channel interface {
	Run(ctx context.Context, sink Sink) error
}

// ChannelFactory builds the configured live-update strategy for a subject.
type ChannelFactory func(sub Subject) Channel
