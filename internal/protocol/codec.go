package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
)

// EncodeLine serializes v as a single JSON object followed by a newline and
// writes it to w. This is the only framing the worker wire protocol uses.
func EncodeLine(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return nil
}

// DecodeResponseLine deserializes one reply line from a worker.
// Returns an error if the line is not valid JSON or not a well-formed
// JSON-RPC response.
func DecodeResponseLine(line []byte) (*Response, error) {
	if len(line) == 0 {
		return nil, fmt.Errorf("empty response line")
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.JSONRPC != Version {
		return nil, fmt.Errorf("invalid jsonrpc version: %q (must be %q)", resp.JSONRPC, Version)
	}

	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("response carries neither result nor error")
	}

	return &resp, nil
}

// DecodeRequest deserializes an inbound JSON-RPC request. The method field is
// required; id is optional and distinguishes requests from notifications.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("request missing required field: method")
	}
	return &req, nil
}

// Normalize fills descriptor defaults and validates the fixed fields.
func (d *ServerDescriptor) Normalize() error {
	if d.ProtocolVersion == "" {
		d.ProtocolVersion = LatestProtocolVersion
	}
	if d.JSONRPC == "" {
		d.JSONRPC = Version
	}
	if d.Type == "" {
		d.Type = "stdio"
	}

	if d.JSONRPC != Version {
		return fmt.Errorf("unsupported jsonrpc version: %q", d.JSONRPC)
	}
	if !slices.Contains(SupportedProtocolVersions, d.ProtocolVersion) {
		return fmt.Errorf("unsupported protocol version: %q (supported: %s)",
			d.ProtocolVersion, strings.Join(SupportedProtocolVersions, ", "))
	}
	if d.Type != "stdio" {
		return fmt.Errorf("unsupported server type: %q (must be stdio)", d.Type)
	}
	if d.Command == "" {
		return fmt.Errorf("server command is empty")
	}
	return nil
}

// MetaFromParams extracts and validates the `_meta.server` descriptor from
// request params. Returns an error when _meta is absent or malformed.
func MetaFromParams(params map[string]any) (*RequestMeta, error) {
	if params == nil {
		return nil, fmt.Errorf("missing params")
	}

	raw, ok := params["_meta"]
	if !ok {
		return nil, fmt.Errorf("missing _meta in params")
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid _meta: %w", err)
	}

	var meta RequestMeta
	if err := json.Unmarshal(encoded, &meta); err != nil {
		return nil, fmt.Errorf("invalid _meta: %w", err)
	}
	if meta.Server == nil {
		return nil, fmt.Errorf("missing _meta.server")
	}
	if err := meta.Server.Normalize(); err != nil {
		return nil, fmt.Errorf("invalid _meta.server: %w", err)
	}
	return &meta, nil
}
