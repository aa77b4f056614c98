package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := initLogger(&buf, slog.LevelWarn)
	logger.Info("dropped")
	slog.Warn("kept", "component", "test")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "test", line["component"])
}

func TestLoadConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_MODE", "mock")
	t.Setenv("HTTP_COMPRESSION_LEVEL", "12")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mock", string(cfg.Backend.Mode))
	assert.Equal(t, 9, cfg.HTTP.CompressionLevel)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("BACKEND_MODE", "carrier-pigeon")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
