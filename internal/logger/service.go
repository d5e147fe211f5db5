package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

func Initialize(level slog.Level, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger writing JSON records, or text records when format is "text".
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel accepts debug, info, warn and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

func Named(name string) *slog.Logger {
	logger := slog.Default()
	if logger == nil {
		return nil
	}

	return logger.With("name", name)
}
