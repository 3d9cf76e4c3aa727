package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", NodeID(ctx))
	assert.Equal(t, "", GestureID(ctx))
	assert.Equal(t, "", RunID(ctx))

	ctx = WithSessionID(ctx, "sess-1")
	ctx = WithNodeID(ctx, "textGeneration-3")
	ctx = WithGestureID(ctx, "g-9")
	ctx = WithRunID(ctx, "run-4")

	assert.Equal(t, "sess-1", SessionID(ctx))
	assert.Equal(t, "textGeneration-3", NodeID(ctx))
	assert.Equal(t, "g-9", GestureID(ctx))
	assert.Equal(t, "run-4", RunID(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := WithNodeID(WithSessionID(context.Background(), "sess-1"), "n-1")
	LogWith(ctx, logger).Info("moved")

	out := buf.String()
	assert.Contains(t, out, "session_id=sess-1")
	assert.Contains(t, out, "node_id=n-1")
	assert.NotContains(t, out, "gesture_id")
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithGestureID(WithSessionID(context.Background(), "sess-2"), "g-1")
	logger.InfoContext(ctx, "gesture started")
	assert.Contains(t, buf.String(), "session_id=sess-2")
	assert.Contains(t, buf.String(), "gesture_id=g-1")

	buf.Reset()
	logger.With("component", "panel").WithGroup("req").InfoContext(context.Background(), "plain", "path", "/x")
	assert.Contains(t, buf.String(), "component=panel")
	assert.Contains(t, buf.String(), "req.path=/x")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info("hidden")
	logger.WarnContext(WithSessionID(context.Background(), "s"), "shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "session_id=s")
}

func TestNewLeveled(t *testing.T) {
	var buf bytes.Buffer
	level := new(slog.LevelVar)
	level.Set(slog.LevelError)
	logger := NewLeveled(&buf, level)

	logger.Info("before")
	level.Set(slog.LevelDebug)
	logger.Debug("after")
	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
}
