package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_FormatsAndTagsService(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, Service: "sync-test"})

	l.Info("[Scheduler] %d connections", 3)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "[Scheduler] 3 connections", entry["message"])
	assert.Equal(t, "sync-test", entry["service"])
	assert.Equal(t, "info", entry["level"])
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: ParseLevel("warn"), Output: &buf})

	l.Info("dropped")
	assert.Zero(t, buf.Len())

	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Output: &buf})

	ctx := context.WithValue(context.Background(), RunIDKey, "run-42")
	l.WithContext(ctx).Info("page done")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "run-42", entry["run_id"])
	assert.NotContains(t, entry, "request_id")
}
