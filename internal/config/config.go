package config

import "time"

// Engine names accepted in sink.engines.
const (
	EngineMemory    = "memory"
	EngineTimescale = "timescale"
	EngineWebSocket = "websocket"
)

// Config is the root configuration for a quotegraph instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Sink     SinkConfig     `yaml:"sink"`
	Database DatabaseConfig `yaml:"database"`
	HTTP     HTTPConfig     `yaml:"http"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig controls where quote batches come from and how many are kept.
type FeedConfig struct {
	Path       string `yaml:"path"`        // File of JSON batches, "-" for stdin
	MaxUpdates int    `yaml:"max_updates"` // Accumulated updates kept (0 = unbounded)
	QueueSize  int    `yaml:"queue_size"`  // Initial batch queue capacity
}

// SinkConfig selects the visualization engines.
type SinkConfig struct {
	Engines []string `yaml:"engines"`
	Table   string   `yaml:"table"` // Timescale table name
}

// DatabaseConfig holds the TimescaleDB connection for the timescale engine.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Name           string        `yaml:"name"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	SSLMode        string        `yaml:"ssl_mode"`
	MaxConns       int           `yaml:"max_conns"`
	MinConns       int           `yaml:"min_conns"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// HTTPConfig holds the health/metrics/viewer server settings.
type HTTPConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ViewerConfig holds WebSocket viewer settings.
type ViewerConfig struct {
	Path       string `yaml:"path"`
	SendBuffer int    `yaml:"send_buffer"` // Per-client queued messages before drops
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// HasEngine reports whether name is listed in sink.engines.
func (c *Config) HasEngine(name string) bool {
	for _, e := range c.Sink.Engines {
		if e == name {
			return true
		}
	}
	return false
}
