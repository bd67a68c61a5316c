package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/manage-core/internal/infrastructure/config"
)

// ServiceName is attached to every entry.
const ServiceName = "manage"

// Logger wraps slog.Logger with the service's default fields.
//
// It satisfies the narrow Logger interfaces of the manager, the pilots, the
// timer and the MQTT client. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to the configured output.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}
	return newLogger(output, cfg, version)
}

func newLogger(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel maps debug, info, warn and error onto slog levels. Anything
// else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child logger carrying extra attributes.
//
//	timerLog := logger.With("component", "timer")
//	timerLog.Info("job added") // includes component=timer
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before configuration is loaded: JSON on stdout
// at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
