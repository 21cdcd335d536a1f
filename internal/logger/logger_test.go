package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestGetReturnsSameLogger(t *testing.T) {
	a := Get()
	b := Get()
	if a == nil || a != b {
		t.Error("Get should always return the same initialized logger")
	}
}

func TestSetLevel(t *testing.T) {
	SetLevel("error")
	defer SetLevel("info")

	if Get().Enabled(context.Background(), slog.LevelWarn) {
		t.Error("warn should be disabled at error level")
	}
	if !Get().Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at error level")
	}
}
