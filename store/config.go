package store

import "log/slog"

// Config holds configuration for the Store.
type Config struct {
	// FetchWholeDocument disables field projection on reads. By default Get
	// asks the backend for the addressed field only.
	FetchWholeDocument bool

	// Logger receives debug records for every operation.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
