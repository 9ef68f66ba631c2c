// Package observability provides logging, metrics, and tracing for the
// moniker client runtime.
package observability

import (
	"io"
	"log/slog"
	"os"
)

// SetupLogger configures a JSON slog logger with service fields and installs
// it as the process default.
func SetupLogger(service, env string, debug bool) *slog.Logger {
	return SetupLoggerTo(os.Stdout, service, env, debug)
}

// SetupLoggerTo is SetupLogger writing to w. Command-line tools pass
// os.Stderr so log lines stay off the data stream.
func SetupLoggerTo(w io.Writer, service, env string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if debug {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, opts)
	logger := slog.New(h).With(
		slog.String("service", service),
		slog.String("env", env),
	)
	slog.SetDefault(logger)
	return logger
}
