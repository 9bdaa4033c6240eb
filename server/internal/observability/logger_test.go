package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestContext_GeneratesID(t *testing.T) {
	rc := NewRequestContext(nil, "/repairs", 1)
	_, err := uuid.Parse(rc.RequestID)
	assert.NoError(t, err)

	other := NewRequestContext(nil, "/repairs", 1)
	assert.NotEqual(t, rc.RequestID, other.RequestID)

	fixed := NewRequestContextWithID(nil, "req-1", "/repairs_batch", 3)
	assert.Equal(t, "req-1", fixed.RequestID)
}

func TestRequestContext_LogsBaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	rc := NewRequestContextWithID(logger, "req-42", "/repairs_batch", 7)
	rc.Info("classify done", slog.Int64(LogFieldDuration, 12))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "classify done", entry["msg"])
	assert.Equal(t, "req-42", entry[LogFieldRequestID])
	assert.Equal(t, "/repairs_batch", entry[LogFieldEndpoint])
	assert.Equal(t, float64(7), entry[LogFieldItemCount])
	assert.Equal(t, float64(12), entry[LogFieldDuration])
}

func TestRequestContext_RoundTripsThroughContext(t *testing.T) {
	rc := NewRequestContext(nil, "/repairs", 1)
	ctx := WithRequestContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, rc, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
