// Package logx builds the structured loggers used across the service.
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// LevelFromFlags picks a level from the command line verbosity flags. The
// very verbose flag wins over verbose, which wins over quiet. With no flag
// set it returns fallback.
func LevelFromFlags(vv, v, q bool, fallback slog.Level) slog.Level {
	switch {
	case vv:
		return slog.LevelDebug
	case v:
		return slog.LevelInfo
	case q:
		return slog.LevelError
	default:
		return fallback
	}
}

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
// The empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
