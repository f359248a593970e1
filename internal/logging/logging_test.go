package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/systemshift/treestore/internal/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("committed", zap.String("ref", "x"))
	require.NoError(t, logger.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "committed", entry["msg"])
	require.Equal(t, "x", entry["ref"])
	require.Equal(t, "info", entry["level"])
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	logger.Debug("view mounted", zap.String("path", "/s/tmp-1"))
	require.Contains(t, buf.String(), "DEBUG")
	require.Contains(t, buf.String(), "view mounted")
	require.Contains(t, buf.String(), "/s/tmp-1")
}

func TestNewWithWriter_Errors(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewWithWriter(config.LoggingConfig{Level: "loud"}, zapcore.AddSync(&buf))
	require.Error(t, err)
	_, err = NewWithWriter(config.LoggingConfig{Format: "xml"}, zapcore.AddSync(&buf))
	require.Error(t, err)
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "treestore.log")
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("journal append failed")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "journal append failed")
	require.NotContains(t, string(data), "dropped")
}
