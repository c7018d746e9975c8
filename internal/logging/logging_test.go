package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, Config{Level: "info", Format: "json"}.Validate())
	assert.NoError(t, Config{Level: "debug", Format: "console"}.Validate())
	assert.Error(t, Config{Level: "loud", Format: "json"}.Validate())
	assert.Error(t, Config{Level: "info", Format: "xml"}.Validate())
}

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("suggestion computed")
	require.NoError(t, logger.Sync())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "suggestion computed", line["msg"])
	assert.Contains(t, line, "ts")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "info", Format: "yaml"})
	assert.Error(t, err)
}
