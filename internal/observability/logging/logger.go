package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewJSONLogger is the service logger: one JSON object per line on stdout,
// tagged with the service name.
func NewJSONLogger(service, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, options(level))).With("service", service)
}

// NewTextLogger is the CLI logger. It writes to w so stdout stays free for
// command output.
func NewTextLogger(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, options(level)))
}

func options(level string) *slog.HandlerOptions {
	return &slog.HandlerOptions{Level: ParseLevel(level)}
}

// ParseLevel accepts slog level names ("debug", "INFO", "warn+2") and
// "warning". Anything else is info.
func ParseLevel(level string) slog.Level {
	level = strings.TrimSpace(level)
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var out slog.Level
	if err := out.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return out
}
