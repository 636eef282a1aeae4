package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range tests {
		require.Equal(t, want, ParseLevel(raw), raw)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "linkrelay", FormatJSON, "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Str("channel", "abc").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "linkrelay", entry["app"])
	require.Equal(t, "shown", entry["message"])
	require.Equal(t, "abc", entry["channel"])
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "linkrelay", FormatConsole, "info")

	logger.Info().Msg("started")
	require.Contains(t, buf.String(), "started")
	require.Contains(t, buf.String(), "linkrelay")
}

func TestWatermillLogger(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillLogger(zerolog.New(&buf).Level(zerolog.DebugLevel))

	adapter.With(watermill.LogFields{"topic": "events"}).
		Error("publish failed", errors.New("boom"), watermill.LogFields{"attempt": 2})
	adapter.Trace("dropped", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "error", entry["level"])
	require.Equal(t, "publish failed", entry["message"])
	require.Equal(t, "boom", entry["error"])
	require.Equal(t, "events", entry["topic"])
	require.Equal(t, float64(2), entry["attempt"])
	require.Equal(t, "watermill", entry["component"])
}
