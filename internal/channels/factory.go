// Package channels selects the live-update strategy. Both strategies
// satisfy the same contract: deliver snapshots and log lines to the sink
// until the profile reaches a terminal state, then stop.
package channels

import (
	"log/slog"
	"time"

	"duedil/internal/adapters/ws"
	"duedil/internal/config"
	"duedil/internal/ports"
	"duedil/internal/workers/poller"
)

type Options struct {
	Strategy       string
	WSBaseURL      string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

func FromConfig(cfg config.Config, log *slog.Logger) Options {
	return Options{
		Strategy:       cfg.Channel,
		WSBaseURL:      cfg.WSBaseURL,
		PollInterval:   cfg.PollInterval,
		ReconnectDelay: cfg.ReconnectDelay,
		Logger:         log,
	}
}

// Factory builds the configured strategy per subject. The polling strategy
// needs the profile reader; the socket strategy only needs the WS base URL.
func Factory(api poller.Reader, opts Options) ports.ChannelFactory {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.Strategy == config.ChannelSocket {
		return func(sub ports.Subject) ports.Channel {
			return ws.NewProfileStream(opts.WSBaseURL, sub,
				ws.StreamLogger(log),
				ws.StreamReconnectDelay(opts.ReconnectDelay))
		}
	}
	return func(sub ports.Subject) ports.Channel {
		return poller.New(api, sub,
			poller.WithLogger(log),
			poller.WithInterval(opts.PollInterval))
	}
}
