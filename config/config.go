// Package config loads the gateway's YAML configuration file, the single
// place every tunable exposed to an operator is declared.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level gateway configuration.
type Config struct {
	Gateway  Gateway  `yaml:"gateway"`
	Session  Session  `yaml:"session"`
	Retained Retained `yaml:"retained"`
	Metrics  Metrics  `yaml:"metrics"`
	Log      Log      `yaml:"log"`
}

// Gateway configures the UDP listener and the dispatcher's protocol
// tunables.
type Gateway struct {
	// ListenAddress is the "host:port" the UDP socket binds.
	ListenAddress string `yaml:"listen_address"`
	// GatewayID is the gateway id byte the GWINFO reply to SEARCHGW carries.
	GatewayID byte `yaml:"gateway_id"`
	// PredefinedTopics maps out-of-band provisioned topic ids to names,
	// known to both gateway and client in advance.
	PredefinedTopics map[uint16]string `yaml:"predefined_topics"`
	// MaxTopicNameLen bounds a REGISTERed or normal-mode topic name.
	MaxTopicNameLen int `yaml:"max_topic_name_len"`
	// RetryInitialDelay is the first QoS1/2 retransmission backoff.
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay"`
	// RetryMaxAttempts is the retry budget before a session is marked LOST.
	RetryMaxAttempts int `yaml:"retry_max_attempts"`
	// WheelTick is the timing wheel's resolution.
	WheelTick time.Duration `yaml:"wheel_tick"`
	// AsleepBufferLimit bounds the number of PUBLISH frames buffered per
	// sleeping session.
	AsleepBufferLimit int `yaml:"asleep_buffer_limit"`
	// SweepInterval is how often the session manager checks for
	// keep-alive/sleep-timeout expiry.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// ShutdownTimeout bounds how long a graceful shutdown waits for
	// in-flight DISCONNECT notifications before closing the socket.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Session configures the session store backend.
type Session struct {
	// Backend selects the Store implementation: "memory", "pebble" or
	// "redis".
	Backend string `yaml:"backend"`
	Pebble  Pebble `yaml:"pebble"`
	Redis   Redis  `yaml:"redis"`
}

// Retained configures the retained-message store backend.
type Retained struct {
	// Backend selects the Store implementation: "memory" or "pebble".
	Backend string `yaml:"backend"`
	Pebble  Pebble `yaml:"pebble"`
}

// Pebble configures an embedded Pebble-backed store.
type Pebble struct {
	Path string `yaml:"path"`
}

// Redis configures a Redis-backed store.
type Redis struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// Metrics configures the Prometheus exporter.
type Metrics struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// Log configures the gateway's logger.
type Log struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `yaml:"level"`
}

// Default returns the configuration a freshly installed gateway starts
// from: an in-memory session and retained store, no metrics endpoint.
func Default() *Config {
	return &Config{
		Gateway: Gateway{
			ListenAddress:     ":1883",
			GatewayID:         1,
			PredefinedTopics:  map[uint16]string{},
			MaxTopicNameLen:   256,
			RetryInitialDelay: 10 * time.Second,
			RetryMaxAttempts:  3,
			WheelTick:         100 * time.Millisecond,
			AsleepBufferLimit: 64,
			SweepInterval:     5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Session:  Session{Backend: "memory"},
		Retained: Retained{Backend: "memory"},
		Metrics:  Metrics{Enabled: false, ListenAddress: ":9090"},
		Log:      Log{Level: "info"},
	}
}

// Load reads and parses the YAML configuration file at path, filling in
// Default()'s values for anything the file omits.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects a configuration the gateway cannot start with.
func (c *Config) Validate() error {
	if c.Gateway.ListenAddress == "" {
		return errors.New("config: gateway.listen_address is required")
	}
	if c.Gateway.RetryMaxAttempts <= 0 {
		return errors.New("config: gateway.retry_max_attempts must be positive")
	}
	if c.Gateway.WheelTick <= 0 {
		return errors.New("config: gateway.wheel_tick must be positive")
	}

	switch c.Session.Backend {
	case "memory", "pebble", "redis":
	default:
		return fmt.Errorf("config: unknown session.backend %q", c.Session.Backend)
	}
	if c.Session.Backend == "pebble" && c.Session.Pebble.Path == "" {
		return errors.New("config: session.pebble.path is required for the pebble backend")
	}
	if c.Session.Backend == "redis" && c.Session.Redis.Addr == "" {
		return errors.New("config: session.redis.addr is required for the redis backend")
	}

	switch c.Retained.Backend {
	case "memory", "pebble":
	default:
		return fmt.Errorf("config: unknown retained.backend %q", c.Retained.Backend)
	}
	if c.Retained.Backend == "pebble" && c.Retained.Pebble.Path == "" {
		return errors.New("config: retained.pebble.path is required for the pebble backend")
	}

	return nil
}
