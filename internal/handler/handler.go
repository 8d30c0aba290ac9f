// Package handler defines the platform-neutral handler contract: the unified
// input shape platform adapters construct, the runtime context map, and the
// uniform envelope they map back to their native responses.
package handler

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/outlethq/mcp-outlet/internal/protocol"
)

// Input is the unified request any platform adapter hands to the dispatcher.
type Input struct {
	Data        *protocol.Request `json:"data"`
	Headers     map[string]string `json:"headers,omitempty"`
	PathParams  map[string]string `json:"pathParams,omitempty"`
	QueryParams map[string]string `json:"queryParams,omitempty"`
}

// RuntimeContext is the free-form platform context map. Platform-specific
// keys the dispatcher does not know are ignored.
type RuntimeContext map[string]any

// Envelope is the uniform response handed back to platform adapters.
// Adapters map it 1:1 onto their native response and own all HTTP-layer
// concerns themselves.
type Envelope struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"statusCode"`
	Data       map[string]any    `json:"data,omitempty"`
	Error      map[string]any    `json:"error,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// TraceID derives a trace id from the request's JSON-RPC id, or generates a
// fresh UUID when the request has none.
func TraceID(req *protocol.Request) string {
	if req != nil && !req.IsNotification() {
		var v any
		if err := json.Unmarshal(req.ID, &v); err == nil && v != nil {
			switch id := v.(type) {
			case string:
				if id != "" {
					return id
				}
			case float64:
				return string(req.ID)
			}
		}
	}
	return uuid.NewString()
}
