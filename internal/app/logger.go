package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger for the Trailview binaries.
// Production always emits JSON; elsewhere LOG_FORMAT picks between JSON and
// human-readable text.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && (cfg.IsProduction() || cfg.LogFormat == "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
