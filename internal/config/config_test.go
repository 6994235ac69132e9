package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"DOCCHAT_BACKEND_URL", "DOCCHAT_REVEAL_INTERVAL", "DOCCHAT_UPLOAD_TIMEOUT", "DOCCHAT_LOG_LEVEL"} {
		t.Setenv(k, "")
	}

	cfg := FromEnv()
	assert.Equal(t, "http://localhost:8000", cfg.BackendURL)
	assert.Equal(t, 30*time.Millisecond, cfg.RevealInterval)
	assert.Equal(t, 120*time.Second, cfg.UploadTimeout)
	assert.Equal(t, 60*time.Second, cfg.FlashcardTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DOCCHAT_BACKEND_URL", "http://backend:9000/")
	t.Setenv("DOCCHAT_REVEAL_INTERVAL", "5ms")
	t.Setenv("DOCCHAT_UPLOAD_TIMEOUT", "not-a-duration")
	t.Setenv("DOCCHAT_LOG_LEVEL", "debug")

	cfg := FromEnv()
	assert.Equal(t, "http://backend:9000", cfg.BackendURL, "trailing slash is trimmed")
	assert.Equal(t, 5*time.Millisecond, cfg.RevealInterval)
	assert.Equal(t, 120*time.Second, cfg.UploadTimeout, "invalid durations fall back to default")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.yaml")
	err := os.WriteFile(path, []byte(`
backend_url: http://rag.internal:8000/
user_id: alice
surrealdb:
  namespace: team
reveal_interval: 10ms
log_level: warn
`), 0644)
	require.NoError(t, err)

	cfg := FromEnv()
	cfg.SurrealDBDatabase = "keep-me"
	require.NoError(t, cfg.ApplyFile(path))

	assert.Equal(t, "http://rag.internal:8000", cfg.BackendURL)
	assert.Equal(t, "alice", cfg.UserID)
	assert.Equal(t, "team", cfg.SurrealDBNamespace)
	assert.Equal(t, "keep-me", cfg.SurrealDBDatabase)
	assert.Equal(t, 10*time.Millisecond, cfg.RevealInterval)
	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestApplyFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte("upload_timeout: soon\n"), 0644))

	cfg := FromEnv()
	err := cfg.ApplyFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload_timeout")
}

func TestLoggerWritesTextAndJSON(t *testing.T) {
	var console, file bytes.Buffer
	logger := newLogger(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("upload bound", "session_id", "s1")

	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "session_id=s1")
	assert.True(t, strings.HasPrefix(file.String(), "{"), "file output is JSON")
	assert.Contains(t, file.String(), `"session_id":"s1"`)
	assert.Contains(t, file.String(), `"pid":`)
}

func TestNewLoggerFullScreenSkipsStderr(t *testing.T) {
	var stderr bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "docchat.log")

	logger, closeLog := NewLogger(LoggerOptions{
		File:   path,
		Level:  slog.LevelInfo,
		Output: OutputFullScreen,
		Stderr: &stderr,
	})
	logger.Info("conversation selected", "conversation_id", "c1")
	require.NoError(t, closeLog())

	assert.Empty(t, stderr.String())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"conversation_id":"c1"`)
}

func TestNewLoggerLineModeFallsBackToStderr(t *testing.T) {
	var stderr bytes.Buffer
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	logger, closeLog := NewLogger(LoggerOptions{
		File:   filepath.Join(blocker, "docchat.log"),
		Level:  slog.LevelInfo,
		Stderr: &stderr,
	})
	logger.Info("still logged")
	require.NoError(t, closeLog())

	assert.Contains(t, stderr.String(), "logging to stderr only")
	assert.Contains(t, stderr.String(), "still logged")
}
