package handler

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlethq/mcp-outlet/internal/protocol"
)

func TestTraceIDFromStringID(t *testing.T) {
	req := &protocol.Request{ID: json.RawMessage(`"call-42"`)}
	assert.Equal(t, "call-42", TraceID(req))
}

func TestTraceIDFromNumericID(t *testing.T) {
	req := &protocol.Request{ID: json.RawMessage(`17`)}
	assert.Equal(t, "17", TraceID(req))
}

func TestTraceIDGeneratedForNotification(t *testing.T) {
	id := TraceID(&protocol.Request{Method: "notifications/initialized"})
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	// Each call yields a fresh id.
	assert.NotEqual(t, id, TraceID(nil))
}

func TestTraceIDEmptyStringFallsBack(t *testing.T) {
	req := &protocol.Request{ID: json.RawMessage(`""`)}
	_, err := uuid.Parse(TraceID(req))
	assert.NoError(t, err)
}
