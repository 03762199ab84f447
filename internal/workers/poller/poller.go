package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"duedil/internal/domain"
	"duedil/internal/ports"
)

// Reader is the one backend call the poller needs.
type Reader interface {
	Profile(ctx context.Context, companyURL string, cached, saved bool) (domain.Snapshot, error)
}

// Poller is the polling live-update strategy: re-fetch the full profile on
// a fixed interval until its status is terminal. Each fetch is a snapshot
// that replaces prior state wholesale, and its logs array is the complete
// history so far.
type Poller struct {
	api      Reader
	sub      ports.Subject
	interval time.Duration
	log      *slog.Logger
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.interval = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

func New(api Reader, sub ports.Subject, opts ...Option) *Poller {
	p := &Poller{
		api:      api,
		sub:      sub,
		interval: 2 * time.Second,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run polls until a terminal snapshot or context cancellation. Fetches are
// issued one at a time, each bounded by the poll interval's context, so a
// superseded request is cancelled rather than racing a newer one; stale
// responses can never overwrite fresher state.
func (p *Poller) Run(ctx context.Context, sink ports.Sink) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		snap, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrNotFound) {
				// The run may not be visible yet right after start.
				continue
			}
			p.log.Warn("profile poll failed", "url", p.sub.URL, "error", err)
			continue
		}

		if snap.Profile.Status.Terminal() {
			// Terminal: deliver once and stop. No further network calls.
			sink.OnFinal(p.sub, snap)
			return nil
		}
		sink.OnSnapshot(p.sub, snap)
	}
}

func (p *Poller) fetch(ctx context.Context) (domain.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()
	return p.api.Profile(fctx, p.sub.URL, true, true)
}
