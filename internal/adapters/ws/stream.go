package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"duedil/internal/domain"
	"duedil/internal/ports"
)

// ProfileStream adapts a Channel to the ports.Channel contract: profile
// frames become snapshots, chat frames become log lines, and the
// final_report frame ends the run.
type ProfileStream struct {
	base           string
	sub            ports.Subject
	log            *slog.Logger
	reconnectDelay time.Duration
}

type StreamOption func(*ProfileStream)

func StreamLogger(l *slog.Logger) StreamOption {
	return func(s *ProfileStream) { s.log = l }
}

func StreamReconnectDelay(d time.Duration) StreamOption {
	return func(s *ProfileStream) { s.reconnectDelay = d }
}

func NewProfileStream(wsBaseURL string, sub ports.Subject, opts ...StreamOption) *ProfileStream {
	s := &ProfileStream{
		base:           wsBaseURL,
		sub:            sub,
		log:            slog.Default(),
		reconnectDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until the final report arrives or the context is cancelled.
func (s *ProfileStream) Run(ctx context.Context, sink ports.Sink) error {
	ch := New(s.base, s.sub.ID, WithLogger(s.log), WithReconnectDelay(s.reconnectDelay))
	defer ch.Close()

	done := make(chan struct{})
	var once sync.Once

	ch.Subscribe(TypeProfile, func(payload json.RawMessage) {
		snap, err := domain.DecodeProfile(payload)
		if err != nil {
			s.log.Warn("dropping malformed profile frame", "error", err)
			return
		}
		sink.OnSnapshot(s.sub, snap)
	})
	ch.Subscribe(TypeChat, func(payload json.RawMessage) {
		sink.OnLog(s.sub, domain.DecodeLogEntry(payload))
	})
	var finalID int
	finalID = ch.Subscribe(TypeFinalReport, func(payload json.RawMessage) {
		ch.Unsubscribe(TypeFinalReport, finalID)
		snap, err := domain.DecodeProfile(payload)
		if err != nil {
			s.log.Warn("malformed final report", "error", err)
			snap = domain.Snapshot{}
		}
		// The final frame is authoritative for terminal sub-states like
		// approved; only a non-terminal or missing status is forced.
		if !snap.Profile.Status.Terminal() {
			snap.Profile.Status = domain.StatusGenerated
		}
		if snap.Profile.URL == "" {
			snap.Profile.URL = s.sub.URL
		}
		sink.OnFinal(s.sub, snap)
		once.Do(func() { close(done) })
	})

	// Dial failures are handled like disconnects: the channel retries on
	// its own timer, so a failed first dial is not fatal here.
	_ = ch.Connect()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
