// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings read from the environment. Database
// connection settings live in internal/database and are read there.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// RedisAddr enables the event journal when non-empty.
	RedisAddr string `env:"REDIS_ADDR"`

	// DisconnectGrace is the reconnect window after an abrupt socket drop.
	DisconnectGrace time.Duration `env:"DISCONNECT_GRACE" envDefault:"5s"`

	// ScorerURL enables AI scoring when non-empty.
	ScorerURL     string        `env:"SCORER_URL"`
	ScorerTimeout time.Duration `env:"SCORER_TIMEOUT" envDefault:"15s"`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
