package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestNewLoggerLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFromContextDefault(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext() returned nil")
	}
}

func TestWithContextRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithContext(context.Background(), logger)
	got := FromContext(ctx)

	got.Info("hello")
	if buf.Len() == 0 {
		t.Fatal("expected log output from the attached logger")
	}
}

func TestForRoleAddsAttribute(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	roled := ForRole(base, "broker")
	roled.Info("hello")

	if !bytes.Contains(buf.Bytes(), []byte("role=broker")) {
		t.Errorf("expected log line to contain role=broker, got %q", buf.String())
	}
}
