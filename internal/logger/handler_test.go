package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deidaraiorek/campusrag/internal/logger"
	"github.com/deidaraiorek/campusrag/internal/middleware"
)

func TestContextHandler_AddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "info", "json")

	ctx := middleware.WithCorrelationID(context.Background(), "run-42")
	log.InfoContext(ctx, "page accepted", "url", "https://site/a")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-42", entry["correlation_id"])
	assert.Equal(t, "https://site/a", entry["url"])
}

func TestContextHandler_KeepsCorrelationWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "info", "json").With("component", "scheduler")

	ctx := middleware.WithCorrelationID(context.Background(), "run-7")
	log.InfoContext(ctx, "hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-7", entry["correlation_id"])
	assert.Equal(t, "scheduler", entry["component"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logger.ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, logger.ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, logger.ParseLevel("nonsense"))
}
