// Package config provides configuration management for netlogind.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the daemon's configuration.
type Config struct {
	SocketPath string `toml:"socket_path"`
	LogLevel   string `toml:"log_level"`

	// NoAuth disables the authentication step (sessions still transition to
	// the user via passwd lookup only). For development use.
	NoAuth bool `toml:"noauth"`

	Timeouts TimeoutsConfig `toml:"timeouts"`
	Metrics  MetricsConfig  `toml:"metrics"`

	// CredentialFile is the bcrypt-hashed shadow-style file consulted by the
	// bundled demonstration authentication back end.
	CredentialFile string `toml:"credential_file"`
}

// TimeoutsConfig defines the daemon's timing contracts (spec.md §5).
type TimeoutsConfig struct {
	// Auth bounds how long the broker waits for the worker to finish the
	// authentication phase before it tears the connection down.
	Auth string `toml:"auth"`
	// ChildReap bounds how long the worker waits for command children during
	// cleanup before abandoning them to init.
	ChildReap string `toml:"child_reap"`
	// CleanupGrace is the pause before tearing down the auth session, giving
	// user daemons started by session-open time to detach.
	CleanupGrace string `toml:"cleanup_grace"`
	// AcceptRateLimit is the minimum spacing between successive broker forks.
	AcceptRateLimit string `toml:"accept_rate_limit"`
}

// MetricsConfig holds configuration for the optional Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
	Path    string `toml:"path"`
}

// DefaultSocketPath is the well-known local socket path (spec.md §6).
const DefaultSocketPath = "/tmp/netlogind.sock"

// Default returns a Config with spec.md's fixed defaults.
func Default() Config {
	return Config{
		SocketPath:     DefaultSocketPath,
		LogLevel:       "info",
		CredentialFile: "/etc/netlogind/shadow",
		Timeouts: TimeoutsConfig{
			Auth:            "5s",
			ChildReap:       "10s",
			CleanupGrace:    "5s",
			AcceptRateLimit: "1s",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9110",
			Path:    "/metrics",
		},
	}
}

// Validate checks that the configuration is usable and returns an error if not.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return errors.New("socket_path is required")
	}

	if _, err := c.AuthTimeout(); err != nil {
		return fmt.Errorf("invalid timeouts.auth: %w", err)
	}
	if _, err := c.ChildReapTimeout(); err != nil {
		return fmt.Errorf("invalid timeouts.child_reap: %w", err)
	}
	if _, err := c.CleanupGrace(); err != nil {
		return fmt.Errorf("invalid timeouts.cleanup_grace: %w", err)
	}
	if _, err := c.AcceptRateLimit(); err != nil {
		return fmt.Errorf("invalid timeouts.accept_rate_limit: %w", err)
	}

	if c.Metrics.Enabled {
		if c.Metrics.Address == "" {
			return errors.New("metrics address is required when metrics are enabled")
		}
		if c.Metrics.Path == "" {
			return errors.New("metrics path is required when metrics are enabled")
		}
	}

	return nil
}

// AuthTimeout returns the authentication-phase timeout (spec.md §4.5/§5, ~5s).
func (c *Config) AuthTimeout() (time.Duration, error) {
	return parseOrDefault(c.Timeouts.Auth, 5*time.Second)
}

// ChildReapTimeout returns the worker's cleanup grace for command children (~10s).
func (c *Config) ChildReapTimeout() (time.Duration, error) {
	return parseOrDefault(c.Timeouts.ChildReap, 10*time.Second)
}

// CleanupGrace returns the pre-cleanup sleep before tearing down the auth session (~5s).
func (c *Config) CleanupGrace() (time.Duration, error) {
	return parseOrDefault(c.Timeouts.CleanupGrace, 5*time.Second)
}

// AcceptRateLimit returns the minimum spacing between successive broker forks (~1s).
func (c *Config) AcceptRateLimit() (time.Duration, error) {
	return parseOrDefault(c.Timeouts.AcceptRateLimit, 1*time.Second)
}

func parseOrDefault(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
