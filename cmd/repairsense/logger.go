package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/hrygo/repairsense/internal/profile"
)

// newLogger returns a JSON logger in prod mode and a text logger in dev mode.
func newLogger(p *profile.Profile, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(p.Server.LogLevel),
		AddSource: p.IsDev(),
	}

	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler).With("service", "repairsense", "version", p.Version)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
