package main

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// setupLogger builds the process logger. Unknown levels fall back to info;
// validateFlags has already rejected them on the command line.
func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	}

	attrs := []any{"service", appName, "version", Version, "pid", os.Getpid()}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, "host", host)
	}
	return slog.New(handler).With(attrs...)
}
