package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fibonacci-trading-bot/config"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"DEBUG":   zerolog.DebugLevel,
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"WARNING": zerolog.WarnLevel,
		"ERROR":   zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	logger, err := New(config.LoggingConfig{
		Level:      "INFO",
		Output:     path,
		JSONFormat: true,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info().Str("component", "test").Msg("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("Expected JSON log line with message, got %q", string(data))
	}
	if !strings.Contains(string(data), `"component":"test"`) {
		t.Errorf("Expected component field, got %q", string(data))
	}
}

func TestNewFiltersBelowLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	logger, err := New(config.LoggingConfig{
		Level:      "ERROR",
		Output:     path,
		JSONFormat: true,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info().Msg("suppressed")
	logger.Error().Msg("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Error("Expected info line to be filtered out")
	}
	if !strings.Contains(string(data), "kept") {
		t.Error("Expected error line to be written")
	}
}

func TestNewRejectsUnwritablePath(t *testing.T) {
	if _, err := New(config.LoggingConfig{Output: "/no/such/dir/bot.log"}); err == nil {
		t.Error("Expected error for unwritable log path")
	}
}
