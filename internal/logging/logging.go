// Package logging wires up the process-wide slog logger the way the rest
// of the stack does: tint for humans in development, JSON for ingestion in
// production.
package logging

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a logger for the given service name. format is "json" or
// "console" (anything else falls back to console); level is one of
// "debug", "info", "warn", "error".
func New(service, format, level string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
	}

	return slog.New(handler).With("service", service)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
