package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afroash/soil-monitor/internal/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	logger.Debug().Msg("hidden")
	logger.Info().Str("sensor", "light_level").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "visible", entry["message"])
	assert.Equal(t, "light_level", entry["sensor"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, closeLog, err := New(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)
	require.NoError(t, err)
	defer closeLog()

	logger.Debug().Msg("[READING #1]")
	out := buf.String()
	assert.Contains(t, out, "[READING #1]")
	assert.False(t, strings.HasPrefix(out, "{"), "text format should not be JSON")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	var buf bytes.Buffer
	logger, closeLog, err := New(config.LoggingConfig{
		Level:      "info",
		Format:     "text",
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("to both")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestNew_BadLevel(t *testing.T) {
	_, _, err := New(config.LoggingConfig{Level: "loud", Format: "json"}, nil)
	assert.Error(t, err)
}
