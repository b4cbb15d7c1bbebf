package logger

import (
	"log/slog"
	"os"

	"github.com/golang-cz/devslog"

	"github.com/attachflow/attachflow/internal/types"
)

// Setup creates a new logger based on configuration.
func Setup(settings *types.Settings) *slog.Logger {
	var level slog.Level
	switch settings.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: settings.Logging.IncludeCaller,
	}

	var handler slog.Handler
	switch settings.Logging.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case "dev":
		handler = devslog.NewHandler(os.Stdout, &devslog.Options{HandlerOptions: opts})
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
