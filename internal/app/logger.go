package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide logger. JSON output is meant for
// production log shipping; anything else gets the readable text handler.
// Every record carries the service name so the API and worker logs can be
// told apart when they land in the same stream.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}

	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("service", "fleetbill"))
}
