package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	testCases := map[string]zapcore.Level{
		"":         zapcore.InfoLevel,
		"DEBUG":    zapcore.DebugLevel,
		" warning": zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"verbose":  zapcore.InfoLevel,
	}
	for input, want := range testCases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("level %q: got %s want %s", input, got, want)
		}
	}
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	logger, err := NewLogger("warn")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("expected error to be enabled at warn level")
	}
}
