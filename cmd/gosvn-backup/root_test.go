package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		quiet   bool
		verbose bool
		want    zerolog.Level
	}{
		{"default", false, false, zerolog.InfoLevel},
		{"verbose", false, true, zerolog.DebugLevel},
		{"quiet", true, false, zerolog.ErrorLevel},
		{"quiet wins", true, true, zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(tt.quiet, tt.verbose))
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, true)
	logger.Info().Str("repository", "core").Msg("backing up revision")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "core", entry["repository"])
	assert.Equal(t, "backing up revision", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, false)
	logger.Warn().Str("repository", "core").Msg("failed to remove partial copy")

	out := buf.String()
	assert.Contains(t, out, "WARN")
	assert.Contains(t, out, "failed to remove partial copy")
	assert.Contains(t, out, "repository=")
	assert.Contains(t, out, "core")
}
