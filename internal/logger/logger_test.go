package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func reset() {
	instance = nil
	once = sync.Once{}
}

func TestInit(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "debug text", cfg: Config{Level: "debug", Format: "text"}},
		{name: "json to stderr", cfg: Config{Level: "warn", Format: "json", Output: "stderr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reset()
			Init(tt.cfg)
			if Get() == nil {
				t.Error("Expected logger to be initialized")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFileOutput(t *testing.T) {
	reset()
	path := filepath.Join(t.TempDir(), "gateway.log")
	Init(Config{Level: "info", Format: "json", Output: path})

	WithSlot("dispatcher", 3).Info("slot selected")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	line := strings.TrimSpace(string(bytes.Split(raw, []byte("\n"))[0]))

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not json: %q", line)
	}
	if entry["component"] != "dispatcher" {
		t.Errorf("component = %v", entry["component"])
	}
	if entry["slot_id"] != float64(3) {
		t.Errorf("slot_id = %v", entry["slot_id"])
	}
}

func TestLogging(t *testing.T) {
	reset()
	Init(Config{Level: "debug", Format: "text"})

	Debug("debug message", "key", "value")
	Info("info message", "key", "value")
	Warn("warn message", "key", "value")
	Error("error message", nil, "key", "value")
}

func TestWithRequestID(t *testing.T) {
	reset()
	Init(DefaultConfig())

	if WithRequestID("req-123") == nil {
		t.Error("Expected logger with request ID")
	}
}
