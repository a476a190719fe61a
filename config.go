package radiosession

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config tunes the protocol engine and session lifecycle. All fields are
// optional; zero values fall back to the documented defaults.
type Config struct {
	// CommandTimeout bounds how long a single in-flight command waits for
	// its terminal reply before the engine synthesizes a command-timeout.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// KeepaliveInterval is how often the engine pings the control channel.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`

	// KeepaliveMissThreshold is the number of consecutive missed
	// keep-alives before the session is declared failed.
	KeepaliveMissThreshold int `yaml:"keepalive_miss_threshold"`

	// QueueWatermark bounds outbound commands queued but not yet flushed
	// to the transport before send() fails with a transport-overrun error.
	QueueWatermark int `yaml:"queue_watermark"`

	// HandleTimeout bounds how long Session.WaitForHandle blocks for the
	// wire "H" line.
	HandleTimeout time.Duration `yaml:"handle_timeout"`

	// StreamBackpressureCap is the default per-stream queue depth in the
	// data-plane demultiplexer before frames are dropped (oldest first).
	StreamBackpressureCap int `yaml:"stream_backpressure_cap"`

	Metrics  MetricsConfig `yaml:"metrics"`
	Logging  LoggingConfig `yaml:"logging"`
}

// MetricsConfig controls the optional Prometheus registration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig controls the session's diagnostic logger.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// DefaultConfig returns the engine's documented defaults.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:         defaultCommandTimeout,
		KeepaliveInterval:      defaultKeepaliveEvery,
		KeepaliveMissThreshold: defaultKeepaliveMisses,
		QueueWatermark:         defaultQueueWatermark,
		HandleTimeout:          defaultCommandTimeout,
		StreamBackpressureCap:  64,
		Metrics:                MetricsConfig{Namespace: "radiosession"},
	}
}

// LoadConfig reads and parses a YAML config file, filling unset fields with
// DefaultConfig's values.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("radiosession: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("radiosession: parse config: %w", err)
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = defaultKeepaliveEvery
	}
	if cfg.KeepaliveMissThreshold <= 0 {
		cfg.KeepaliveMissThreshold = defaultKeepaliveMisses
	}
	if cfg.QueueWatermark <= 0 {
		cfg.QueueWatermark = defaultQueueWatermark
	}
	if cfg.HandleTimeout <= 0 {
		cfg.HandleTimeout = defaultCommandTimeout
	}
	if cfg.StreamBackpressureCap <= 0 {
		cfg.StreamBackpressureCap = 64
	}
	return cfg, nil
}
