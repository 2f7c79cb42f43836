package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithOptionsEmitsJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "lendingd.log")
	logger, closer := SetupWithOptions(" lendingd ", "test", Options{
		Level:  slog.LevelDebug,
		Writer: &buf,
		File:   &FileOptions{Path: logPath, MaxSizeMB: 1},
	})
	logger.Debug("loan opened", "loan_id", 7, MaskField("authorization", "Bearer abc"))
	require.NoError(t, closer.Close())

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "lendingd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "loan opened", line["message"])
	require.Equal(t, RedactedValue, line["authorization"])
	require.Contains(t, line, "timestamp")

	onDisk, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Equal(t, buf.String(), string(onDisk))
}

func TestSetupWithOptionsFiltersLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger, _ := SetupWithOptions("lendingd", "", Options{Level: slog.LevelWarn, Writer: &buf})
	logger.Info("dropped")
	require.Zero(t, buf.Len())
	logger.Warn("kept")
	require.Contains(t, buf.String(), "kept")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel(" error "))
	require.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestMaskField(t *testing.T) {
	require.Equal(t, "alice", MaskField("caller", "alice").Value.String())
	require.Equal(t, RedactedValue, MaskField("token", "secret").Value.String())
	require.Equal(t, " ", MaskField("token", " ").Value.String())
	require.Equal(t, "", MaskValue(""))
	require.Equal(t, RedactedValue, MaskValue("x"))
}
