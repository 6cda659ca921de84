package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json config", config: &Config{Level: "debug", Format: "json"}},
		{name: "console config", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	log.Info("pool ready")

	entry := decode(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "pool ready", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	child := log.With().
		Str("driver", "mysql").
		Int("connection_limit", 1).
		Uint64("thread_id", 42).
		Dur("timeout", 500*time.Millisecond).
		Logger()

	child.Info("query timed out")

	entry := decode(t, buf)
	assert.Equal(t, "mysql", entry["driver"])
	assert.Equal(t, float64(1), entry["connection_limit"])
	assert.Equal(t, float64(42), entry["thread_id"])
	assert.Equal(t, float64(500), entry["timeout"])
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "error", Format: "json", Output: buf})

	log.ErrorWith("failed to connect", errors.New("connection refused"), map[string]interface{}{
		"host": "localhost",
		"port": 3306,
	})

	entry := decode(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "connection refused", entry["error"])
	assert.Equal(t, "localhost", entry["host"])
	assert.Equal(t, float64(3306), entry["port"])
}

func TestLogger_DebugWith(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "debug", Format: "json", Output: buf})

	log.DebugWith("kill failed", errors.New("unknown thread id"), map[string]interface{}{"thread_id": 7})

	entry := decode(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "unknown thread id", entry["error"])
	assert.Equal(t, float64(7), entry["thread_id"])
}

func TestLogger_Context(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(&Config{Level: "info", Format: "json", Output: buf})

	ctx := log.WithContext(context.Background())
	FromContext(ctx).Info("from context")

	entry := decode(t, buf)
	assert.Equal(t, "from context", entry["message"])
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFunc  func(*Logger)
		expected bool
	}{
		{
			name:     "debug level logs debug",
			level:    "debug",
			logFunc:  func(l *Logger) { l.Debug("debug message") },
			expected: true,
		},
		{
			name:     "info level skips debug",
			level:    "info",
			logFunc:  func(l *Logger) { l.DebugWith("debug message", nil, nil) },
			expected: false,
		},
		{
			name:     "warn level logs warn",
			level:    "warn",
			logFunc:  func(l *Logger) { l.WarnWith("warn message", nil) },
			expected: true,
		},
		{
			name:     "error level skips info",
			level:    "error",
			logFunc:  func(l *Logger) { l.Info("info message") },
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := New(&Config{Level: tt.level, Format: "json", Output: buf})

			tt.logFunc(log)

			if tt.expected {
				assert.NotEmpty(t, buf.String(), "expected log output")
			} else {
				assert.Empty(t, buf.String(), "expected no log output")
			}
		})
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	assert.NotPanics(t, func() {
		log.Error("dropped")
		log.With().Str("k", "v").Logger().Warn("dropped")
	})
}

func BenchmarkLogger_WithFields(b *testing.B) {
	log := New(&Config{Level: "info", Format: "json", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.With().
			Str("operation", "query").
			Int("attempt", i).
			Logger().
			Info("benchmark message")
	}
}
