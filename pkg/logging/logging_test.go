package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/optimal-cyber/launchpad-sub001/pkg/config"
)

func TestNewJSONWithFile(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "server.log")
	logger := New(config.LoggingConfig{Level: "warn", JSON: true, File: path, MaxSizeMB: 1}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("agent_id", "a1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	require.Equal(t, "kept", entry["message"])
	require.Equal(t, "a1", entry["agent_id"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"kept"`)
	require.NotContains(t, string(data), "dropped")
}

func TestNewConsoleDefaultsToInfo(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.TraceLevel) })

	var buf bytes.Buffer
	logger := New(config.LoggingConfig{}, &buf)
	logger.Debug().Msg("hidden")
	logger.Info().Msg("visible")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "visible")
}
