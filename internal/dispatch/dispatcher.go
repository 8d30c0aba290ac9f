package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/outlethq/mcp-outlet/internal/bridge"
	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/log"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/rpcerr"
	"github.com/outlethq/mcp-outlet/internal/trace"
	"github.com/outlethq/mcp-outlet/internal/uvx"
)

// ArgumentResolver resolves worker launch arguments into an entry point.
type ArgumentResolver interface {
	Resolve(ctx context.Context, args []string) (*uvx.Resolution, error)
}

// WorkerBridge is the per-call worker lifecycle the dispatcher drives.
type WorkerBridge interface {
	Connect() (map[string]any, error)
	Execute(req *protocol.Request, tracer *trace.Tracer) (any, error)
	Close() error
}

// BridgeFactory builds a fresh bridge for one forwarded call. Bridges are
// never pooled or reused.
type BridgeFactory func(desc *protocol.ServerDescriptor, res *uvx.Resolution) WorkerBridge

// TraceSink archives finalized traces. Persistence is best effort and never
// fails a call.
type TraceSink interface {
	SaveTrace(ctx context.Context, method string, success bool, tr trace.Trace) error
}

// Options configures a Dispatcher.
type Options struct {
	Resolver       ArgumentResolver
	NewBridge      BridgeFactory
	Sink           TraceSink // optional
	RequestTimeout time.Duration
}

// Dispatcher executes inbound JSON-RPC requests one at a time, process-wide.
type Dispatcher struct {
	// mu is the admission lock. It is owned by this value, not ambient
	// global state, so tests construct isolated dispatchers.
	mu sync.Mutex

	resolver  ArgumentResolver
	newBridge BridgeFactory
	sink      TraceSink
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) *Dispatcher {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = bridge.DefaultRequestTimeout
	}
	return &Dispatcher{
		resolver:  opts.Resolver,
		newBridge: opts.NewBridge,
		sink:      opts.Sink,
		timeout:   timeout,
		logger:    log.WithComponent("dispatch"),
	}
}

// NewProcBridgeFactory returns the production factory: a bridge over a uv
// subprocess transport importing from cacheDir.
func NewProcBridgeFactory(cacheDir string, requestTimeout time.Duration) BridgeFactory {
	return func(desc *protocol.ServerDescriptor, res *uvx.Resolution) WorkerBridge {
		transport := bridge.NewProcTransport(bridge.ProcConfig{
			Module:   res.ModulePath,
			Function: res.FunctionName,
			CacheDir: cacheDir,
			Env:      desc.Env,
			Cwd:      desc.Cwd,
		})
		return bridge.New(bridge.Config{
			JSONRPC:         desc.JSONRPC,
			ProtocolVersion: desc.ProtocolVersion,
			RequestTimeout:  requestTimeout,
		}, transport)
	}
}

// Execute runs one inbound request to completion under the admission lock and
// returns the uniform envelope. It never panics outward and never returns a
// raw transport failure.
func (d *Dispatcher) Execute(ctx context.Context, in handler.Input, rctx handler.RuntimeContext) handler.Envelope {
	d.mu.Lock()
	defer d.mu.Unlock()

	req := in.Data
	tracer := trace.New(handler.TraceID(req), "")
	logger := d.logger.With("trace_id", tracer.TraceID())

	// Lambda keeps the runtime alive until the response is fully flushed.
	if _, ok := rctx["callbackWaitsForEmptyEventLoop"]; ok {
		rctx["callbackWaitsForEmptyEventLoop"] = true
	}

	var br WorkerBridge
	// The bridge closes on every exit path before the admission lock is
	// released (deferred unlock runs after this).
	defer func() {
		if br != nil {
			if err := br.Close(); err != nil {
				logger.Warn("worker close failed", "error", err)
			}
		}
	}()

	result, meta, err := d.dispatch(ctx, req, rctx, tracer, logger, &br)
	if err != nil {
		formatted := rpcerr.Format(err)
		logger.Warn("request failed", "method", methodOf(req), "code", formatted.Code, "error", formatted.Message)
		env := errorEnvelope(req, meta, tracer, formatted)
		d.archive(ctx, req, false, tracer)
		return env
	}

	logger.Info("request completed", "method", methodOf(req))
	env := successEnvelope(req, meta, tracer, result)
	d.archive(ctx, req, true, tracer)
	return env
}

// dispatch runs validation, classification, and execution. br is assigned as
// soon as a bridge exists so the caller's deferred close always sees it.
func (d *Dispatcher) dispatch(
	ctx context.Context,
	req *protocol.Request,
	rctx handler.RuntimeContext,
	tracer *trace.Tracer,
	logger *slog.Logger,
	br *WorkerBridge,
) (any, *protocol.RequestMeta, error) {
	tracer.RecordSpan("inputValidation", "", nil)

	if req == nil {
		return nil, nil, rpcerr.New(rpcerr.CodeInvalidRequest,
			"Request _meta must be including correct server configuration",
			map[string]any{"reason": "Missing request body"})
	}

	meta, err := protocol.MetaFromParams(req.Params)
	if err != nil {
		return nil, nil, rpcerr.New(rpcerr.CodeInvalidRequest,
			"Request _meta must be including correct server configuration",
			map[string]any{"reason": err.Error()})
	}

	entry, known := methodTable[req.Method]
	if !known || entry.kind == rejectedMethod {
		return nil, meta, rpcerr.Newf(rpcerr.CodeMethodNotFound,
			"Rpc supporting only %s methods", supportedMethodList())
	}

	if entry.kind == localMethod {
		tracer.RecordSpan("outletHandler", "", nil)
		return entry.handler(req, rctx), meta, nil
	}

	// Forwarding needs a response-correlation id; a notification has none.
	if req.IsNotification() {
		return nil, meta, rpcerr.Newf(rpcerr.CodeMethodNotFound,
			"Method not found: %s", req.Method)
	}

	tracer.RecordSpan("extractingServerConfig", "", nil)
	if !strings.HasPrefix(meta.Server.Command, "uv") {
		return nil, meta, rpcerr.New(rpcerr.CodeInvalidRequest,
			"Only uv or uvx command is supported for now", nil)
	}

	resolution, err := d.resolver.Resolve(ctx, meta.Server.Args)
	if err != nil {
		return nil, meta, err
	}
	logger.Debug("worker entry point resolved",
		"package", resolution.PackageName,
		"module", resolution.ModulePath,
		"function", resolution.FunctionName)

	tracer.RecordSpan("connectToServer", "", nil)
	*br = d.newBridge(meta.Server, resolution)
	if _, err := (*br).Connect(); err != nil {
		return nil, meta, err
	}

	tracer.RecordSpan("executeMcpCall", "", map[string]any{"method": req.Method})
	result, err := (*br).Execute(req, tracer)
	if err != nil {
		return nil, meta, err
	}
	return result, meta, nil
}

// archive persists the finalized trace, best effort.
func (d *Dispatcher) archive(ctx context.Context, req *protocol.Request, success bool, tracer *trace.Tracer) {
	if d.sink == nil {
		return
	}
	if err := d.sink.SaveTrace(ctx, methodOf(req), success, tracer.Snapshot(success)); err != nil {
		d.logger.Warn("trace archive failed", "error", err)
	}
}

func methodOf(req *protocol.Request) string {
	if req == nil {
		return ""
	}
	return req.Method
}
