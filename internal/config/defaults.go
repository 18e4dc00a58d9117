package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultFeedPath         = "-"
	DefaultQueueSize        = 64
	DefaultTable            = "quote_aggregates"
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHTTPPort         = 8080
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultViewerPath       = "/ws"
	DefaultViewerSendBuffer = 256
	DefaultMetricsPath      = "/metrics"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

// DefaultEngines is used when sink.engines is empty.
var DefaultEngines = []string{EngineMemory, EngineWebSocket}

func (c *Config) applyDefaults() {
	// Feed defaults
	if c.Feed.Path == "" {
		c.Feed.Path = DefaultFeedPath
	}
	if c.Feed.QueueSize == 0 {
		c.Feed.QueueSize = DefaultQueueSize
	}

	// Sink defaults
	if len(c.Sink.Engines) == 0 {
		c.Sink.Engines = append([]string(nil), DefaultEngines...)
	}
	if c.Sink.Table == "" {
		c.Sink.Table = DefaultTable
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// HTTP defaults
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Viewer defaults
	if c.Viewer.Path == "" {
		c.Viewer.Path = DefaultViewerPath
	}
	if c.Viewer.SendBuffer == 0 {
		c.Viewer.SendBuffer = DefaultViewerSendBuffer
	}

	// Metrics defaults
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
	if db.ConnectTimeout == 0 {
		db.ConnectTimeout = DefaultConnectTimeout
	}
}
