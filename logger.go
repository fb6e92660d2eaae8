package main

import (
	"io"
	"log/slog"
)

// NewLogger returns a structured slog.Logger with the given level writing
// JSON to w. The MCP server owns stdout, so callers pass stderr.
func NewLogger(w io.Writer, level slog.Leveler) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
