package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aidd/paper-tracker/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	t.Run("applies level", func(t *testing.T) {
		logger := NewLogger(config.LoggingConfig{Level: "warn", Format: "json", Output: "stderr"})
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
	})

	t.Run("writes json lines to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tracker.log")
		logger := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: path})
		logger.Info().Str("source", "arxiv").Msg("poll finished")

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
		assert.Equal(t, "poll finished", entry["message"])
		assert.Equal(t, "arxiv", entry["source"])
		assert.Equal(t, "paper-tracker", entry["service"])
	})

	t.Run("unwritable file falls back", func(t *testing.T) {
		logger := NewLogger(config.LoggingConfig{Level: "info", Output: filepath.Join(t.TempDir(), "missing", "x.log")})
		assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
	})
}

func TestFieldHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithPollIDField(WithSource(WithComponent(base, "coordinator"), "biorxiv"), "poll-1")
	logger = WithRequestIDField(logger, "req-9")
	logger.Info().Msg("x")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "coordinator", entry["component"])
	assert.Equal(t, "biorxiv", entry["source"])
	assert.Equal(t, "poll-1", entry["poll_id"])
	assert.Equal(t, "req-9", entry["request_id"])
}

func TestTemporalLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTemporalLogger(zerolog.New(&buf))

	logger.Warn("activity retry", "attempt", 2, "ActivityType", "FetchSource", "dangling")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "temporal-sdk", entry["component"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, "FetchSource", entry["ActivityType"])
	assert.NotContains(t, entry, "dangling")
}

func TestKeyvalToMap_NonStringKey(t *testing.T) {
	m := keyvalToMap([]interface{}{42, "answer"})
	assert.Equal(t, map[string]interface{}{"42": "answer"}, m)
}
