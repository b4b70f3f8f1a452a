package internal

import (
	"io"
	"log/slog"
	"strings"
)

// levelNames maps config strings to slog levels. Unknown values fall
// back to info rather than failing startup.
var levelNames = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds the process-wide slog.Logger. Development gets the
// text handler for readable local output; everything else emits JSON
// for log aggregation.
func NewLogger(w io.Writer, env string, level string) *slog.Logger {
	lvl, ok := levelNames[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	if env == "development" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
