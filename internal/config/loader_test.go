package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.toml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	expected := Default()
	if cfg.SocketPath != expected.SocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, expected.SocketPath)
	}
}

func TestLoadValidTOML(t *testing.T) {
	content := `
socket_path = "/var/run/netlogind.sock"
log_level = "debug"
noauth = true
credential_file = "/etc/netlogind/shadow.custom"

[timeouts]
auth = "15s"
child_reap = "20s"
cleanup_grace = "3s"
accept_rate_limit = "2s"

[metrics]
enabled = true
address = ":9200"
path = "/custom-metrics"
`

	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SocketPath != "/var/run/netlogind.sock" {
		t.Errorf("socket_path = %q, want '/var/run/netlogind.sock'", cfg.SocketPath)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", cfg.LogLevel)
	}
	if !cfg.NoAuth {
		t.Error("noauth = false, want true")
	}
	if cfg.CredentialFile != "/etc/netlogind/shadow.custom" {
		t.Errorf("credential_file = %q, want '/etc/netlogind/shadow.custom'", cfg.CredentialFile)
	}
	if cfg.Timeouts.Auth != "15s" {
		t.Errorf("timeouts.auth = %q, want '15s'", cfg.Timeouts.Auth)
	}
	if cfg.Timeouts.ChildReap != "20s" {
		t.Errorf("timeouts.child_reap = %q, want '20s'", cfg.Timeouts.ChildReap)
	}
	if cfg.Timeouts.CleanupGrace != "3s" {
		t.Errorf("timeouts.cleanup_grace = %q, want '3s'", cfg.Timeouts.CleanupGrace)
	}
	if cfg.Timeouts.AcceptRateLimit != "2s" {
		t.Errorf("timeouts.accept_rate_limit = %q, want '2s'", cfg.Timeouts.AcceptRateLimit)
	}
	if !cfg.Metrics.Enabled {
		t.Error("metrics.enabled = false, want true")
	}
	if cfg.Metrics.Address != ":9200" {
		t.Errorf("metrics.address = %q, want ':9200'", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/custom-metrics" {
		t.Errorf("metrics.path = %q, want '/custom-metrics'", cfg.Metrics.Path)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	content := `
socket_path = "broken
`
	path := createTempConfig(t, content)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid TOML, got nil")
	}
}

func TestLoadPartialConfig(t *testing.T) {
	content := `
socket_path = "/var/run/partial.sock"
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SocketPath != "/var/run/partial.sock" {
		t.Errorf("socket_path = %q, want '/var/run/partial.sock'", cfg.SocketPath)
	}

	defaults := Default()
	if cfg.LogLevel != defaults.LogLevel {
		t.Errorf("log_level = %q, want default %q", cfg.LogLevel, defaults.LogLevel)
	}
	if cfg.Timeouts.Auth != defaults.Timeouts.Auth {
		t.Errorf("timeouts.auth = %q, want default %q", cfg.Timeouts.Auth, defaults.Timeouts.Auth)
	}
	if cfg.CredentialFile != defaults.CredentialFile {
		t.Errorf("credential_file = %q, want default %q", cfg.CredentialFile, defaults.CredentialFile)
	}
}

func TestLoadMetricsConfigPartial(t *testing.T) {
	content := `
[metrics]
enabled = true
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Metrics.Enabled {
		t.Errorf("metrics.enabled = %v, want true", cfg.Metrics.Enabled)
	}

	defaults := Default()
	if cfg.Metrics.Address != defaults.Metrics.Address {
		t.Errorf("metrics.address = %q, want default %q", cfg.Metrics.Address, defaults.Metrics.Address)
	}
	if cfg.Metrics.Path != defaults.Metrics.Path {
		t.Errorf("metrics.path = %q, want default %q", cfg.Metrics.Path, defaults.Metrics.Path)
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := Default()

	flags := &Flags{
		SocketPath:     "/flag/socket.sock",
		LogLevel:       "debug",
		NoAuth:         true,
		CredentialFile: "/flag/shadow",
	}

	result := ApplyFlags(cfg, flags)

	if result.SocketPath != "/flag/socket.sock" {
		t.Errorf("socket_path = %q, want '/flag/socket.sock'", result.SocketPath)
	}
	if result.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug'", result.LogLevel)
	}
	if !result.NoAuth {
		t.Error("noauth = false, want true")
	}
	if result.CredentialFile != "/flag/shadow" {
		t.Errorf("credential_file = %q, want '/flag/shadow'", result.CredentialFile)
	}
}

func TestApplyFlagsEmptyValuesDoNotOverride(t *testing.T) {
	cfg := Default()
	cfg.SocketPath = "/original/socket.sock"
	cfg.LogLevel = "warn"

	flags := &Flags{}

	result := ApplyFlags(cfg, flags)

	if result.SocketPath != "/original/socket.sock" {
		t.Errorf("socket_path = %q, want '/original/socket.sock' (should not be overridden)", result.SocketPath)
	}
	if result.LogLevel != "warn" {
		t.Errorf("log_level = %q, want 'warn' (should not be overridden)", result.LogLevel)
	}
}

func TestApplyFlagsDebugForcesDebugLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"

	flags := &Flags{Debug: true}

	result := ApplyFlags(cfg, flags)

	if result.LogLevel != "debug" {
		t.Errorf("log_level = %q, want 'debug' (debug flag should force it)", result.LogLevel)
	}
}

func TestFlagPriorityOverConfig(t *testing.T) {
	content := `
socket_path = "/config/socket.sock"
log_level = "info"
`
	path := createTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	flags := &Flags{SocketPath: "/flag/socket.sock"}
	result := ApplyFlags(cfg, flags)

	if result.SocketPath != "/flag/socket.sock" {
		t.Errorf("socket_path = %q, want '/flag/socket.sock' (flag should override)", result.SocketPath)
	}
	if result.LogLevel != "info" {
		t.Errorf("log_level = %q, want 'info' (config value should remain)", result.LogLevel)
	}
}

func TestLoadWithFlags(t *testing.T) {
	content := `
log_level = "warn"
`
	path := createTempConfig(t, content)

	flags := &Flags{ConfigPath: path, SocketPath: "/flag/socket.sock"}

	cfg, err := LoadWithFlags(flags)
	if err != nil {
		t.Fatalf("LoadWithFlags() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want 'warn'", cfg.LogLevel)
	}
	if cfg.SocketPath != "/flag/socket.sock" {
		t.Errorf("socket_path = %q, want '/flag/socket.sock'", cfg.SocketPath)
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to create temp config: %v", err)
	}
	return path
}
