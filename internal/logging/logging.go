package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the global slog logger. format is "text" or "json";
// level is one of debug, info, warn, error. verbose forces debug.
func Setup(format, level string, verbose bool) {
	slog.SetDefault(New(os.Stderr, format, level, verbose))
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, format, level string, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if verbose {
		opts.Level = slog.LevelDebug
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
