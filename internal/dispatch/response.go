package dispatch

import (
	"encoding/json"
	"net/http"

	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/rpcerr"
	"github.com/outlethq/mcp-outlet/internal/trace"
)

// customMeta builds the `_meta` object stitched into every response: the
// echoed server descriptor (when the request carried a valid one) and the
// finalized trace.
func customMeta(meta *protocol.RequestMeta, tracer *trace.Tracer, success bool) map[string]any {
	out := map[string]any{}
	if meta != nil && meta.Server != nil {
		out["server"] = meta.Server
	}
	if tracer != nil {
		out["trace"] = tracer.Snapshot(success)
	}
	return out
}

// successEnvelope wraps a result into a well-formed JSON-RPC response inside
// the success envelope.
func successEnvelope(req *protocol.Request, meta *protocol.RequestMeta, tracer *trace.Tracer, result any) handler.Envelope {
	resultObj := map[string]any{}
	switch r := result.(type) {
	case nil:
	case map[string]any:
		for k, v := range r {
			resultObj[k] = v
		}
	default:
		resultObj["value"] = r
	}

	// Result-provided _meta keys survive; outlet metadata wins on conflict.
	mergedMeta := map[string]any{}
	if existing, ok := resultObj["_meta"].(map[string]any); ok {
		for k, v := range existing {
			mergedMeta[k] = v
		}
	}
	for k, v := range customMeta(meta, tracer, true) {
		mergedMeta[k] = v
	}
	resultObj["_meta"] = mergedMeta

	response := map[string]any{
		"jsonrpc": jsonrpcOf(req),
		"result":  resultObj,
	}
	if id := idOf(req); id != nil {
		response["id"] = id
	}

	return handler.Envelope{
		Success:    true,
		StatusCode: http.StatusOK,
		Data:       response,
	}
}

// errorEnvelope wraps a formatted error into a well-formed JSON-RPC error
// response inside the failure envelope. The original error's _meta, when
// present, wins over outlet metadata.
func errorEnvelope(req *protocol.Request, meta *protocol.RequestMeta, tracer *trace.Tracer, formatted *rpcerr.Error) handler.Envelope {
	data := map[string]any{}
	if origin, ok := formatted.Data.(map[string]any); ok {
		for k, v := range origin {
			data[k] = v
		}
	} else if formatted.Data != nil {
		data["cause"] = formatted.Data
	}

	mergedMeta := customMeta(meta, tracer, false)
	if originMeta, ok := data["_meta"].(map[string]any); ok {
		for k, v := range originMeta {
			mergedMeta[k] = v
		}
	}
	data["_meta"] = mergedMeta

	errorObj := map[string]any{
		"code":    formatted.Code,
		"message": formatted.Message,
		"data":    data,
	}

	response := map[string]any{
		"jsonrpc": jsonrpcOf(req),
		"error":   errorObj,
	}
	if id := idOf(req); id != nil {
		response["id"] = id
	}

	return handler.Envelope{
		Success:    false,
		StatusCode: http.StatusInternalServerError,
		Error:      response,
	}
}

func jsonrpcOf(req *protocol.Request) string {
	if req != nil && req.JSONRPC != "" {
		return req.JSONRPC
	}
	return protocol.Version
}

// idOf echoes the request id as raw JSON, or nil for notifications.
func idOf(req *protocol.Request) any {
	if req == nil || req.IsNotification() {
		return nil
	}
	return json.RawMessage(req.ID)
}
