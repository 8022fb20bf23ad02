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
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "info", "json")
		l.Debug("hidden")
		l.Info("scraped", "page", 2)

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "scraped", entry["msg"])
		assert.EqualValues(t, 2, entry["page"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewWithWriter(&buf, "debug", "text")
		l.Debug("visible", "asin", "B000TEST01")
		assert.Contains(t, buf.String(), "asin=B000TEST01")
	})
}
