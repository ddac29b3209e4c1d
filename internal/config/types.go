package config

import (
	"time"

	"github.com/mattjoyce/irqd/internal/interrupt"
)

// Config represents the complete irqd configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Driver    DriverConfig    `yaml:"driver"`
	Journal   JournalConfig   `yaml:"journal"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// SourcePath is the file the config was loaded from. Empty for defaults.
	SourcePath string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DispatchConfig tunes the dispatch loop and the built-in handlers.
type DispatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	TimerDelay   time.Duration `yaml:"timer_delay"`
	IOTimeout    time.Duration `yaml:"io_timeout"`
	// DrainTimeout bounds graceful shutdown. Zero waits forever.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DriverConfig defines the simulated interrupt source.
type DriverConfig struct {
	Count       int              `yaml:"count"`
	MinInterval time.Duration    `yaml:"min_interval"`
	MaxInterval time.Duration    `yaml:"max_interval"`
	MaxPriority int              `yaml:"max_priority"`
	Kinds       []interrupt.Kind `yaml:"kinds"`
	// Seed fixes the random source. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// JournalConfig defines the SQLite outcome journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// TelemetryConfig toggles the OpenTelemetry SDK providers.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with the stock demo behaviour: ten simulated
// interrupts, two second timers, five second input window.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "irqd",
			LogLevel:  "warn",
			LogFormat: "text",
		},
		Dispatch: DispatchConfig{
			PollInterval: 100 * time.Millisecond,
			TimerDelay:   2 * time.Second,
			IOTimeout:    5 * time.Second,
			DrainTimeout: 0,
		},
		Driver: DriverConfig{
			Count:       10,
			MinInterval: 500 * time.Millisecond,
			MaxInterval: 2 * time.Second,
			MaxPriority: 10,
			Kinds:       interrupt.Kinds(),
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    "./data/journal.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8090",
		},
	}
}
