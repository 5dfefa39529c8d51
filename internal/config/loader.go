package config

import (
	"flag"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

// Flags holds command-line flag values.
type Flags struct {
	ConfigPath     string
	SocketPath     string
	LogLevel       string
	NoAuth         bool
	Debug          bool
	CredentialFile string
}

// ParseFlags parses command-line flags and returns a Flags struct.
// The -client, -broker, -worker and -daemonized mode flags are registered
// separately by cmd/netlogind (they select a run mode rather than tune
// configuration); -debug and -noauth are registered here, since they also
// feed into Config so the rest of the daemon can see them.
func ParseFlags() *Flags {
	f := &Flags{}

	flag.StringVar(&f.ConfigPath, "config", "/etc/netlogind/netlogind.toml", "Path to configuration file")
	flag.StringVar(&f.SocketPath, "socket", "", "Unix socket path (overrides config)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.NoAuth, "noauth", false, "Disable the authentication step (development only)")
	flag.BoolVar(&f.Debug, "debug", false, "Run in the foreground, single connection, verbose")
	flag.StringVar(&f.CredentialFile, "credential-file", "", "Path to the bcrypt shadow-style credential file")

	flag.Parse()
	return f
}

// Load parses a TOML configuration file and returns the Config.
// If the file does not exist, returns the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig Config
	if err := toml.Unmarshal(data, &fileConfig); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	return mergeConfig(cfg, fileConfig), nil
}

// ApplyFlags merges command-line flag values into the config.
// Non-zero/non-empty flag values override config file values.
func ApplyFlags(cfg Config, f *Flags) Config {
	if f.SocketPath != "" {
		cfg.SocketPath = f.SocketPath
	}
	if f.LogLevel != "" {
		cfg.LogLevel = f.LogLevel
	}
	if f.NoAuth {
		cfg.NoAuth = true
	}
	if f.Debug {
		cfg.LogLevel = "debug"
	}
	if f.CredentialFile != "" {
		cfg.CredentialFile = f.CredentialFile
	}
	return cfg
}

// LoadWithFlags loads configuration from the path specified in flags,
// then applies flag overrides.
func LoadWithFlags(f *Flags) (Config, error) {
	cfg, err := Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	return ApplyFlags(cfg, f), nil
}

// mergeConfig merges non-zero values from src into dst.
func mergeConfig(dst, src Config) Config {
	if src.SocketPath != "" {
		dst.SocketPath = src.SocketPath
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.NoAuth {
		dst.NoAuth = src.NoAuth
	}
	if src.CredentialFile != "" {
		dst.CredentialFile = src.CredentialFile
	}

	if src.Timeouts.Auth != "" {
		dst.Timeouts.Auth = src.Timeouts.Auth
	}
	if src.Timeouts.ChildReap != "" {
		dst.Timeouts.ChildReap = src.Timeouts.ChildReap
	}
	if src.Timeouts.CleanupGrace != "" {
		dst.Timeouts.CleanupGrace = src.Timeouts.CleanupGrace
	}
	if src.Timeouts.AcceptRateLimit != "" {
		dst.Timeouts.AcceptRateLimit = src.Timeouts.AcceptRateLimit
	}

	if src.Metrics.Enabled {
		dst.Metrics.Enabled = src.Metrics.Enabled
	}
	if src.Metrics.Address != "" {
		dst.Metrics.Address = src.Metrics.Address
	}
	if src.Metrics.Path != "" {
		dst.Metrics.Path = src.Metrics.Path
	}

	return dst
}
