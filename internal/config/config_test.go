package config

import "testing"

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.SocketPath != DefaultSocketPath {
		t.Errorf("SocketPath = %q, want %q", cfg.SocketPath, DefaultSocketPath)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want 'info'", cfg.LogLevel)
	}
	if cfg.NoAuth {
		t.Error("NoAuth should default to false")
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to false")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default config", func(c *Config) {}, false},
		{"empty socket path", func(c *Config) { c.SocketPath = "" }, true},
		{"invalid auth timeout", func(c *Config) { c.Timeouts.Auth = "not-a-duration" }, true},
		{"invalid child_reap timeout", func(c *Config) { c.Timeouts.ChildReap = "soon" }, true},
		{"invalid cleanup_grace timeout", func(c *Config) { c.Timeouts.CleanupGrace = "???" }, true},
		{"invalid accept_rate_limit timeout", func(c *Config) { c.Timeouts.AcceptRateLimit = "never" }, true},
		{
			"metrics enabled with empty address",
			func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Address = "" },
			true,
		},
		{
			"metrics enabled with empty path",
			func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Path = "" },
			true,
		},
		{
			"metrics enabled with address and path set",
			func(c *Config) { c.Metrics.Enabled = true },
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutAccessorsFallBackToDefaults(t *testing.T) {
	cfg := Default()
	cfg.Timeouts = TimeoutsConfig{}

	if auth, err := cfg.AuthTimeout(); err != nil || auth.Seconds() != 5 {
		t.Errorf("AuthTimeout() = %v, %v, want 5s, nil", auth, err)
	}
	if reap, err := cfg.ChildReapTimeout(); err != nil || reap.Seconds() != 10 {
		t.Errorf("ChildReapTimeout() = %v, %v, want 10s, nil", reap, err)
	}
	if grace, err := cfg.CleanupGrace(); err != nil || grace.Seconds() != 5 {
		t.Errorf("CleanupGrace() = %v, %v, want 5s, nil", grace, err)
	}
	if rate, err := cfg.AcceptRateLimit(); err != nil || rate.Seconds() != 1 {
		t.Errorf("AcceptRateLimit() = %v, %v, want 1s, nil", rate, err)
	}
}

func TestTimeoutAccessorsHonorOverrides(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Auth = "30s"

	auth, err := cfg.AuthTimeout()
	if err != nil || auth.Seconds() != 30 {
		t.Errorf("AuthTimeout() = %v, %v, want 30s, nil", auth, err)
	}
}

func TestTimeoutAccessorsRejectGarbage(t *testing.T) {
	cfg := Default()
	cfg.Timeouts.Auth = "not-a-duration"

	if _, err := cfg.AuthTimeout(); err == nil {
		t.Fatal("expected error parsing invalid duration")
	}
}
