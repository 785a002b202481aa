package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNew_ProductionDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, Environment: "production"})

	Stage(l, "cta").Info("dropped", "reason", "misfit")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "cta", rec["stage"])
	assert.Equal(t, "dropped", rec["msg"])
	assert.Equal(t, "misfit", rec["reason"])
}

func TestPrettyHandler_LiftsStage(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, Format: FormatPretty})

	Stage(l, "background").Warn("fallback", "duration", 42.3)

	out := buf.String()
	assert.Contains(t, out, "[background]")
	assert.Contains(t, out, "fallback")
	assert.Contains(t, out, "duration=42.3")
	assert.NotContains(t, out, "stage=")
}

func TestPrettyHandler_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, Format: FormatPretty, Level: slog.LevelWarn})

	l.Info("hidden")
	assert.Empty(t, buf.String())
}

func TestStage_NilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Stage(nil, "render").Info("ok")
	})
}
