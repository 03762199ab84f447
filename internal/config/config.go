package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	ChannelPoll   = "poll"
	ChannelSocket = "socket"
)

type Config struct {
	Env            string        `env:"APP_ENV" env-default:"development"`
	APIBaseURL     string        `env:"DD_API_BASE_URL" env-default:"http://localhost:8055/api"`
	WSBaseURL      string        `env:"DD_WS_BASE_URL" env-default:"ws://localhost:8055"`
	Channel        string        `env:"DD_CHANNEL" env-default:"poll"`
	PollInterval   time.Duration `env:"DD_POLL_INTERVAL" env-default:"2s"`
	SettleDelay    time.Duration `env:"DD_SETTLE_DELAY" env-default:"2s"`
	ReconnectDelay time.Duration `env:"DD_RECONNECT_DELAY" env-default:"2s"`

	// ListenAddr is only used by the stub backend.
	ListenAddr string `env:"LISTEN_ADDR" env-default:":8055"`
}

func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if cfg.Channel != ChannelPoll && cfg.Channel != ChannelSocket {
		return cfg, fmt.Errorf("DD_CHANNEL must be %q or %q, got %q", ChannelPoll, ChannelSocket, cfg.Channel)
	}
	return cfg, nil
}
