// Package rpcerr defines the JSON-RPC error taxonomy used across the outlet
// and the translation of arbitrary failures into it.
package rpcerr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Standard JSON-RPC 2.0 error codes plus the MCP-specific extensions.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeConnectionClosed = -32001
	CodeRequestTimeout   = -32002
)

// Error is a typed JSON-RPC error. It is the only error type that crosses the
// dispatcher boundary unchanged.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// New creates a typed error with optional attached data.
func New(code int, message string, data any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// Newf creates a typed error with a formatted message and no data.
func Newf(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Format translates any failure into a typed Error.
//
// A *Error passes through unchanged. A value shaped like a JSON-RPC error
// object ({code, message, data?}) is normalized, stripping the redundant
// "MCP error <code>: " message prefix workers tend to prepend. Anything else
// becomes an internal error with the original string form preserved in Data.
func Format(err any) *Error {
	if err == nil {
		return New(CodeInternalError, "Unknown error", nil)
	}

	if typed, ok := err.(*Error); ok {
		return typed
	}

	if shaped, ok := asErrorShape(err); ok {
		return shaped
	}

	if goErr, ok := err.(error); ok {
		return New(CodeInternalError, goErr.Error(), nil)
	}

	return New(CodeInternalError, "Unknown error", map[string]any{
		"error": fmt.Sprintf("%v", err),
	})
}

// asErrorShape recognizes {code, message, data?} values, either as maps or as
// anything that round-trips through JSON into that shape.
func asErrorShape(v any) (*Error, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, false
		}
	}

	codeVal, hasCode := m["code"]
	msgVal, hasMsg := m["message"]
	if !hasCode || !hasMsg {
		return nil, false
	}

	code, ok := toInt(codeVal)
	if !ok {
		return nil, false
	}
	msg, ok := msgVal.(string)
	if !ok {
		return nil, false
	}

	msg = strings.TrimPrefix(msg, fmt.Sprintf("MCP error %d: ", code))
	return &Error{Code: code, Message: msg, Data: m["data"]}, true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
