// Package logging configures the process-wide zerolog logger. Components
// receive a child logger tagged with their component name.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"fibonacci-trading-bot/config"

	"github.com/rs/zerolog"
)

// New builds the root logger from configuration. File outputs are opened
// in append mode; unknown outputs fall back to stdout.
func New(cfg config.LoggingConfig) (zerolog.Logger, error) {
	writer, err := output(cfg)
	if err != nil {
		return zerolog.Nop(), err
	}

	if !cfg.JSONFormat {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(writer).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.IncludeFile {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}

func output(cfg config.LoggingConfig) (io.Writer, error) {
	switch cfg.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cfg.Output, err)
		}
		return file, nil
	}
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO", "":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
