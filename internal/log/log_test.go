package log

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDropsTimeAndRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	logger.Info("calling api", "key", "sk-secret", "Authorization", "Bearer sk-secret", "status", 401)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.NotContains(t, entry, slog.TimeKey)
	assert.Equal(t, "[REDACTED]", entry["key"])
	assert.Equal(t, "[REDACTED]", entry["Authorization"])
	assert.EqualValues(t, 401, entry["status"])
	assert.NotContains(t, buf.String(), "sk-secret")
}

func TestNewHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("quiet")
	assert.Empty(t, buf.String())

	logger.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContextOrDiscard(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	assert.Same(t, logger, FromContextOrDiscard(NewContext(context.Background(), logger)))
	assert.Same(t, discardLogger, FromContextOrDiscard(context.Background()))
}
