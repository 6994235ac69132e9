//go:build integration

// Package db_test contains integration tests for the SurrealDB client.
package db_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/docchat/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getTestConfig returns config from environment or defaults for local testing.
func getTestConfig() db.Config {
	return db.Config{
		URL:       getEnv("SURREALDB_URL", "ws://localhost:8001/rpc"),
		Namespace: getEnv("SURREALDB_NAMESPACE", "test_docchat"),
		Database:  getEnv("SURREALDB_DATABASE", "test_docchat"),
		Username:  getEnv("SURREALDB_USER", "root"),
		Password:  getEnv("SURREALDB_PASS", "root"),
		AuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func connect(t *testing.T) (*db.Client, context.Context) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("SURREALDB_URL") == "" {
		t.Skip("SURREALDB_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := db.NewClient(ctx, getTestConfig(), logger)
	require.NoError(t, err, "should connect to SurrealDB")
	t.Cleanup(func() { _ = client.Close(ctx) })
	return client, ctx
}

func TestClientConnectExternal(t *testing.T) {
	client, ctx := connect(t)

	require.NoError(t, client.Ping(ctx))
}

func TestClientInitSchemaExternal(t *testing.T) {
	client, ctx := connect(t)

	require.NoError(t, client.InitSchema(ctx), "should initialize schema without error")

	// Running twice must be harmless
	require.NoError(t, client.InitSchema(ctx))

	list, err := client.ListConversations(ctx, "nobody")
	require.NoError(t, err, "tables exist after schema init")
	assert.Empty(t, list)
}

func TestClientReconnection(t *testing.T) {
	client, ctx := connect(t)

	require.NoError(t, client.Ping(ctx), "should answer before wait")

	time.Sleep(2 * time.Second)

	require.NoError(t, client.Ping(ctx), "should answer after wait (connection maintained)")
}
