package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/rpcerr"
	"github.com/outlethq/mcp-outlet/internal/trace"
	"github.com/outlethq/mcp-outlet/internal/uvx"
)

type stubResolver struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubResolver) Resolve(ctx context.Context, args []string) (*uvx.Resolution, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return &uvx.Resolution{PackageName: "pkg", ModulePath: "pkg", FunctionName: "main"}, nil
}

func (s *stubResolver) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubBridge struct {
	connectErr error
	execute    func(req *protocol.Request, tracer *trace.Tracer) (any, error)

	connected bool
	closed    bool
}

func (s *stubBridge) Connect() (map[string]any, error) {
	if s.connectErr != nil {
		return nil, s.connectErr
	}
	s.connected = true
	return map[string]any{"serverInfo": map[string]any{"name": "stub"}}, nil
}

func (s *stubBridge) Execute(req *protocol.Request, tracer *trace.Tracer) (any, error) {
	if s.execute != nil {
		return s.execute(req, tracer)
	}
	return map[string]any{"ok": true}, nil
}

func (s *stubBridge) Close() error {
	s.closed = true
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	saved  []trace.Trace
	method []string
}

func (r *recordingSink) SaveTrace(ctx context.Context, method string, success bool, t trace.Trace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, t)
	r.method = append(r.method, method)
	return nil
}

func newTestDispatcher(resolver *stubResolver, bridge *stubBridge, sink TraceSink) *Dispatcher {
	return New(Options{
		Resolver: resolver,
		NewBridge: func(desc *protocol.ServerDescriptor, res *uvx.Resolution) WorkerBridge {
			return bridge
		},
		Sink: sink,
	})
}

func request(t *testing.T, id int64, method string, withMeta bool) *protocol.Request {
	t.Helper()
	req := &protocol.Request{JSONRPC: "2.0", Method: method, Params: map[string]any{}}
	if id != 0 {
		req.SetNumericID(id)
	}
	if withMeta {
		req.Params["_meta"] = map[string]any{
			"server": map[string]any{
				"command": "uvx",
				"args":    []any{"pkg"},
			},
		}
	}
	return req
}

func errorObj(t *testing.T, env handler.Envelope) map[string]any {
	t.Helper()
	require.False(t, env.Success)
	obj, ok := env.Error["error"].(map[string]any)
	require.True(t, ok, "error envelope missing error object")
	return obj
}

func TestExecuteMissingMetaRejectsWithoutLaunching(t *testing.T) {
	resolver := &stubResolver{}
	bridge := &stubBridge{}
	d := newTestDispatcher(resolver, bridge, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 1, "tools/call", false)}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, 500, env.StatusCode)
	assert.Equal(t, rpcerr.CodeInvalidRequest, obj["code"].(int))
	assert.Equal(t, "Request _meta must be including correct server configuration", obj["message"])
	assert.Equal(t, 0, resolver.callCount())
	assert.False(t, bridge.connected)
}

func TestExecuteUnknownMethodEnumeratesSupported(t *testing.T) {
	d := newTestDispatcher(&stubResolver{}, &stubBridge{}, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 1, "bogus/method", true)}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, rpcerr.CodeMethodNotFound, obj["code"].(int))
	msg := obj["message"].(string)
	assert.Equal(t, "Rpc supporting only ping, logging/setLevel, notifications/initialized, "+
		"initialize, prompts/get, prompts/list, resources/list, resources/templates/list, "+
		"resources/read, tools/call, tools/list, completion/complete methods", msg)
}

func TestExecuteRejectedMethod(t *testing.T) {
	resolver := &stubResolver{}
	d := newTestDispatcher(resolver, &stubBridge{}, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 1, "sampling/createMessage", true)}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, rpcerr.CodeMethodNotFound, obj["code"].(int))
	assert.Equal(t, 0, resolver.callCount())
}

func TestExecuteForwardedNotification(t *testing.T) {
	d := newTestDispatcher(&stubResolver{}, &stubBridge{}, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 0, "tools/list", true)}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, rpcerr.CodeMethodNotFound, obj["code"].(int))
	assert.Equal(t, "Method not found: tools/list", obj["message"])
	// Notifications carry no id to echo.
	assert.NotContains(t, env.Error, "id")
}

func TestExecuteLocalPing(t *testing.T) {
	resolver := &stubResolver{}
	bridge := &stubBridge{}
	d := newTestDispatcher(resolver, bridge, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 9, "ping", true)}, handler.RuntimeContext{})

	require.True(t, env.Success)
	assert.Equal(t, 200, env.StatusCode)
	assert.Equal(t, json.RawMessage("9"), env.Data["id"])
	result, ok := env.Data["result"].(map[string]any)
	require.True(t, ok)
	meta, ok := result["_meta"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, meta, "trace")
	assert.Equal(t, 0, resolver.callCount())
	assert.False(t, bridge.connected)
}

func TestExecuteSetLevel(t *testing.T) {
	d := newTestDispatcher(&stubResolver{}, &stubBridge{}, nil)

	req := request(t, 2, "logging/setLevel", true)
	req.Params["level"] = "debug"
	env := d.Execute(context.Background(), handler.Input{Data: req}, handler.RuntimeContext{})

	require.True(t, env.Success)
	result := env.Data["result"].(map[string]any)
	meta := result["_meta"].(map[string]any)
	assert.Equal(t, "debug", meta["traceLevel"])
}

func TestExecuteForwardedHappyPath(t *testing.T) {
	resolver := &stubResolver{}
	bridge := &stubBridge{
		execute: func(req *protocol.Request, tracer *trace.Tracer) (any, error) {
			return map[string]any{"tools": []any{map[string]any{"name": "now"}}}, nil
		},
	}
	sink := &recordingSink{}
	d := newTestDispatcher(resolver, bridge, sink)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 7, "tools/list", true)}, handler.RuntimeContext{})

	require.True(t, env.Success)
	result := env.Data["result"].(map[string]any)
	assert.Contains(t, result, "tools")

	meta := result["_meta"].(map[string]any)
	assert.Contains(t, meta, "server")
	tr, ok := meta["trace"].(trace.Trace)
	require.True(t, ok)
	seqs := make([]string, 0, len(tr.Spans))
	for _, s := range tr.Spans {
		seqs = append(seqs, s.Seq)
	}
	assert.Equal(t, []string{"inputValidation", "extractingServerConfig", "connectToServer", "executeMcpCall"}, seqs)

	assert.Equal(t, 1, resolver.callCount())
	assert.True(t, bridge.connected)
	assert.True(t, bridge.closed)

	require.Len(t, sink.saved, 1)
	assert.Equal(t, "tools/list", sink.method[0])
}

func TestExecuteNonUVCommand(t *testing.T) {
	resolver := &stubResolver{}
	d := newTestDispatcher(resolver, &stubBridge{}, nil)

	req := request(t, 1, "tools/call", false)
	req.Params["_meta"] = map[string]any{
		"server": map[string]any{"command": "npx", "args": []any{"pkg"}},
	}
	env := d.Execute(context.Background(), handler.Input{Data: req}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, rpcerr.CodeInvalidRequest, obj["code"].(int))
	assert.Equal(t, "Only uv or uvx command is supported for now", obj["message"])
	assert.Equal(t, 0, resolver.callCount())
}

func TestExecuteConnectFailureClosesBridge(t *testing.T) {
	bridge := &stubBridge{connectErr: rpcerr.Newf(rpcerr.CodeInternalError, "Initialize failed: %s", "boom")}
	d := newTestDispatcher(&stubResolver{}, bridge, nil)

	env := d.Execute(context.Background(), handler.Input{Data: request(t, 3, "tools/call", true)}, handler.RuntimeContext{})

	obj := errorObj(t, env)
	assert.Equal(t, "Initialize failed: boom", obj["message"])
	assert.True(t, bridge.closed)
}

func TestExecuteNilRequest(t *testing.T) {
	d := newTestDispatcher(&stubResolver{}, &stubBridge{}, nil)

	env := d.Execute(context.Background(), handler.Input{}, handler.RuntimeContext{})
	obj := errorObj(t, env)
	assert.Equal(t, rpcerr.CodeInvalidRequest, obj["code"].(int))
}

func TestExecuteRuntimeContextFlag(t *testing.T) {
	d := newTestDispatcher(&stubResolver{}, &stubBridge{}, nil)

	rctx := handler.RuntimeContext{"callbackWaitsForEmptyEventLoop": false}
	d.Execute(context.Background(), handler.Input{Data: request(t, 1, "ping", true)}, rctx)
	assert.Equal(t, true, rctx["callbackWaitsForEmptyEventLoop"])
}

func TestExecuteSerializesConcurrentCalls(t *testing.T) {
	var mu sync.Mutex
	active := 0
	maxActive := 0

	bridge := &stubBridge{
		execute: func(req *protocol.Request, tracer *trace.Tracer) (any, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			return map[string]any{}, nil
		},
	}
	d := newTestDispatcher(&stubResolver{}, bridge, nil)

	var wg sync.WaitGroup
	for i := int64(1); i <= 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			env := d.Execute(context.Background(), handler.Input{Data: request(t, id, "tools/call", true)}, handler.RuntimeContext{})
			assert.True(t, env.Success)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "calls must not overlap")
	assert.Equal(t, 0, active)
}
