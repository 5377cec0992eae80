// Package logger provides structured logging for the slot gateway.
// Every package takes a component-scoped logger from here instead of calling slog directly.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	instance *slog.Logger
	once     sync.Once
)

// Config holds logger configuration.
type Config struct {
	Level     string `json:"level"`     // debug, info, warn, error
	Format    string `json:"format"`    // json, text
	Output    string `json:"output"`    // stdout, stderr, file path
	AddSource bool   `json:"addSource"` // include source file/line
}

// DefaultConfig reads the logger settings from the environment.
func DefaultConfig() Config {
	return Config{
		Level:     getEnv("LOG_LEVEL", "info"),
		Format:    getEnv("LOG_FORMAT", "json"),
		Output:    getEnv("LOG_OUTPUT", "stdout"),
		AddSource: getEnv("LOG_SOURCE", "false") == "true",
	}
}

// Init initializes the global logger. Only the first call has an effect.
func Init(cfg Config) {
	once.Do(func() {
		opts := &slog.HandlerOptions{
			Level:     parseLevel(cfg.Level),
			AddSource: cfg.AddSource,
		}

		out := openOutput(cfg.Output)

		var handler slog.Handler
		if cfg.Format == "text" {
			handler = slog.NewTextHandler(out, opts)
		} else {
			handler = slog.NewJSONHandler(out, opts)
		}

		instance = slog.New(handler)
		slog.SetDefault(instance)
	})
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func openOutput(target string) io.Writer {
	switch target {
	case "", "stdout":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// Get returns the global logger instance.
func Get() *slog.Logger {
	if instance == nil {
		Init(DefaultConfig())
	}
	return instance
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Get().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Get().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Get().Warn(msg, args...)
}

// Error logs an error message with the error attached under "error".
func Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	Get().Error(msg, args...)
}

// WithComponent returns a logger with component attribute
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// WithRequestID returns a logger with request ID
func WithRequestID(requestID string) *slog.Logger {
	return Get().With("request_id", requestID)
}

// WithSlot returns a component logger bound to a slot identity.
func WithSlot(component string, slotID int) *slog.Logger {
	return WithComponent(component).With("slot_id", slotID)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
