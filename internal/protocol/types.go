package protocol

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Protocol versions the outlet advertises to workers.
var SupportedProtocolVersions = []string{"2025-03-26", "2024-11-05", "2024-10-07"}

// LatestProtocolVersion is the default when a descriptor omits one.
const LatestProtocolVersion = "2025-03-26"

// Version is the only JSON-RPC version the outlet speaks.
const Version = "2.0"

// Request is a JSON-RPC 2.0 request. A missing id marks a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  map[string]any  `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, []byte("null"))
}

// SetNumericID assigns a numeric correlation id.
func (r *Request) SetNumericID(n int64) {
	r.ID = json.RawMessage(strconv.FormatInt(n, 10))
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of a JSON-RPC response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ServerDescriptor is the worker launch configuration carried in request
// metadata. Only stdio transport is supported.
type ServerDescriptor struct {
	ProtocolVersion string            `json:"protocolVersion,omitempty"`
	JSONRPC         string            `json:"jsonrpc,omitempty"`
	Type            string            `json:"type,omitempty"`
	Command         string            `json:"command"`
	Args            []string          `json:"args,omitempty"`
	Cwd             string            `json:"cwd,omitempty"`
	Stderr          any               `json:"stderr,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	Version         string            `json:"version,omitempty"`
}

// RequestMeta is the `_meta` object required in forwardable request params.
type RequestMeta struct {
	Server *ServerDescriptor `json:"server"`
}
