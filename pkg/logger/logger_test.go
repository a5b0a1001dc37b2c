package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormatterCarriesFields(t *testing.T) {
	require.NoError(t, Init(Config{Level: "info", Format: "json", Output: "stdout"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	LogWriteError("pitches", "create", "p1", errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, `"collection":"pitches"`)
	assert.Contains(t, out, `"action":"create"`)
	assert.Contains(t, out, "write failed: boom")
}

func TestLevelFiltersDebug(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	require.NoError(t, Init(Config{Level: "warn", Format: "text"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Warn("shown %d", 3)

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 3")
}
