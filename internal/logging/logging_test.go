// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCtx(t *testing.T) {
	ctx := AppendCtx(context.TODO(), slog.String("key1", "value1"))

	attrs, ok := ctx.Value(slogFields).([]slog.Attr)
	require.True(t, ok)
	require.Len(t, attrs, 1)
	assert.Equal(t, "key1", attrs[0].Key)
	assert.Equal(t, "value1", attrs[0].Value.String())
}

func TestAppendCtx_SiblingsDoNotShareAttributes(t *testing.T) {
	parent := AppendCtx(context.Background(), slog.String("platform", "zoom"))
	parent = AppendCtx(parent, slog.String("event_type", "meeting.ended"))

	a := AppendCtx(parent, slog.String("branch", "a"))
	b := AppendCtx(parent, slog.String("branch", "b"))

	attrsA := a.Value(slogFields).([]slog.Attr)
	attrsB := b.Value(slogFields).([]slog.Attr)
	require.Len(t, attrsA, 3)
	require.Len(t, attrsB, 3)
	assert.Equal(t, "a", attrsA[2].Value.String())
	assert.Equal(t, "b", attrsB[2].Value.String())
	assert.Len(t, parent.Value(slogFields).([]slog.Attr), 2)
}

func TestHandler_WritesContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := AppendCtx(context.Background(), slog.String("external_event_id", "evt-1"))
	logger.With("component", "test").InfoContext(ctx, "event received", PriorityCritical())

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "event received", record["msg"])
	assert.Equal(t, "evt-1", record["external_event_id"])
	assert.Equal(t, "test", record["component"])
	assert.Equal(t, "critical", record["priority"])
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"INFO", slog.LevelInfo},
		{"unknown", logLevelDefault},
		{"", logLevelDefault},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			assert.Equal(t, tt.want, levelFromEnv())
		})
	}
}

func TestInitStructureLogConfig(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("LOG_ADD_SOURCE", "true")
	defaultLogger := slog.Default()
	defer slog.SetDefault(defaultLogger)

	assert.NotNil(t, InitStructureLogConfig())
}
