package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(input)
		require.NoError(t, err)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo, "json").With("name", "deployer").Info("deployed", "address", "0x01")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "deployed", record["msg"])
	assert.Equal(t, "deployer", record["name"])

	buf.Reset()
	New(&buf, slog.LevelInfo, "text").Debug("hidden")
	assert.Empty(t, buf.String())
}
