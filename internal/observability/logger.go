// Package observability provides logging, metrics, and tracing helpers shared
// by the API and orchestrator processes.
package observability

import (
	"log/slog"
	"os"

	"github.com/okedigitalmedia/voucherd/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{}
	if cfg.IsDev() || cfg.Debug {
		opts.Level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}
