package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Feed.MaxUpdates < 0 {
		return errors.New("feed.max_updates must be >= 0")
	}
	if c.Feed.QueueSize < 1 {
		return errors.New("feed.queue_size must be >= 1")
	}

	seen := make(map[string]bool, len(c.Sink.Engines))
	for _, e := range c.Sink.Engines {
		switch e {
		case EngineMemory, EngineTimescale, EngineWebSocket:
		default:
			return fmt.Errorf("sink.engines: unknown engine %q", e)
		}
		if seen[e] {
			return fmt.Errorf("sink.engines: duplicate engine %q", e)
		}
		seen[e] = true
	}

	if c.HasEngine(EngineTimescale) {
		if !tableNamePattern.MatchString(c.Sink.Table) {
			return fmt.Errorf("sink.table %q is not a valid table name", c.Sink.Table)
		}
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.Viewer.Path, "/") {
		return fmt.Errorf("viewer.path must start with /, got %q", c.Viewer.Path)
	}
	if c.Viewer.SendBuffer < 1 {
		return errors.New("viewer.send_buffer must be >= 1")
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if c.Metrics.Path == c.Viewer.Path {
		return fmt.Errorf("metrics.path and viewer.path must differ, both %q", c.Metrics.Path)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
