package util

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "production", "")

	logger.Debug("hidden")
	logger.Info("visible", "tenant_id", "t-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "visible", entry["msg"])
	assert.Equal(t, "crewbase", entry["service"])
	assert.Equal(t, "t-1", entry["tenant_id"])
}

func TestNewLogger_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "development", "warn")

	logger.Info("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}
