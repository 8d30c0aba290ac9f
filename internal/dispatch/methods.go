package dispatch

import (
	"strings"

	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/protocol"
)

type methodKind int

const (
	// localMethod is computed inline by the outlet itself.
	localMethod methodKind = iota
	// forwardedMethod requires a worker call.
	forwardedMethod
	// rejectedMethod always fails MethodNotFound.
	rejectedMethod
)

// localHandler computes a local method. The returned map becomes the JSON-RPC
// result object (nil is a valid empty result).
type localHandler func(req *protocol.Request, rctx handler.RuntimeContext) map[string]any

type methodEntry struct {
	kind    methodKind
	handler localHandler
}

// methodOrder fixes enumeration order for the MethodNotFound message.
var methodOrder = []string{
	"ping",
	"logging/setLevel",
	"notifications/initialized",
	"initialize",
	"prompts/get",
	"prompts/list",
	"resources/list",
	"resources/templates/list",
	"resources/read",
	"tools/call",
	"tools/list",
	"completion/complete",
	"notifications/roots/list_changed",
	"resources/unsubscribe",
	"resources/subscribe",
	"sampling/createMessage",
	"roots/list",
}

var methodTable = map[string]methodEntry{
	// Outlet-level methods, handled directly.
	"ping": {kind: localMethod, handler: func(*protocol.Request, handler.RuntimeContext) map[string]any {
		return nil
	}},
	"logging/setLevel": {kind: localMethod, handler: handleSetLevel},
	"notifications/initialized": {kind: localMethod, handler: func(*protocol.Request, handler.RuntimeContext) map[string]any {
		return nil
	}},

	// MCP server-level methods, forwarded to the worker.
	"initialize":               {kind: forwardedMethod},
	"prompts/get":              {kind: forwardedMethod},
	"prompts/list":             {kind: forwardedMethod},
	"resources/list":           {kind: forwardedMethod},
	"resources/templates/list": {kind: forwardedMethod},
	"resources/read":           {kind: forwardedMethod},
	"tools/call":               {kind: forwardedMethod},
	"tools/list":               {kind: forwardedMethod},
	"completion/complete":      {kind: forwardedMethod},

	// Unsupported methods.
	"notifications/roots/list_changed": {kind: rejectedMethod},
	"resources/unsubscribe":            {kind: rejectedMethod},
	"resources/subscribe":              {kind: rejectedMethod},
	"sampling/createMessage":           {kind: rejectedMethod},
	"roots/list":                       {kind: rejectedMethod},
}

func handleSetLevel(req *protocol.Request, _ handler.RuntimeContext) map[string]any {
	level := "info"
	if req.Params != nil {
		if l, ok := req.Params["level"].(string); ok && l != "" {
			level = l
		}
	}
	return map[string]any{
		"_meta": map[string]any{"traceLevel": level},
	}
}

// supportedMethodList enumerates every non-rejected method name, in table
// order, for the MethodNotFound message.
func supportedMethodList() string {
	var names []string
	for _, name := range methodOrder {
		if methodTable[name].kind != rejectedMethod {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}
