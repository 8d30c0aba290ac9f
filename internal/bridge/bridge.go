package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/outlethq/mcp-outlet/internal/log"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/rpcerr"
	"github.com/outlethq/mcp-outlet/internal/trace"
)

// DefaultRequestTimeout bounds the handshake and each forwarded call.
const DefaultRequestTimeout = 30 * time.Second

// notifyTimeout bounds the best-effort initialized notification.
const notifyTimeout = 50 * time.Millisecond

// ClientInfo published during the initialize handshake.
const (
	clientName    = "mcp-outlet"
	clientVersion = "1.0.0"
)

// Config carries the protocol parameters for one bridge.
type Config struct {
	JSONRPC         string
	ProtocolVersion string
	RequestTimeout  time.Duration
}

// Bridge drives one worker over a Transport: handshake, strictly sequential
// request/response exchange, teardown. Calls are never multiplexed; at most
// one pending call exists at a time.
type Bridge struct {
	cfg       Config
	transport Transport
	logger    *slog.Logger

	nextID     int64
	started    bool
	connected  bool
	closed     bool
	serverInfo map[string]any
}

// New creates a bridge over transport. Zero config fields get defaults.
func New(cfg Config, transport Transport) *Bridge {
	if cfg.JSONRPC == "" {
		cfg.JSONRPC = protocol.Version
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = protocol.LatestProtocolVersion
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Bridge{
		cfg:       cfg,
		transport: transport,
		logger:    log.WithComponent("bridge"),
		nextID:    1,
	}
}

// Start launches the worker. Returns immediately once both channels exist.
func (b *Bridge) Start() error {
	if b.started {
		return nil
	}
	if err := b.transport.Start(); err != nil {
		return rpcerr.New(rpcerr.CodeInternalError, err.Error(), nil)
	}
	b.started = true
	return nil
}

// SendRequest writes one JSON line and blocks for exactly one reply line.
// Timeout and premature closure are classified; a malformed reply is a fatal,
// non-retried bridge error.
func (b *Bridge) SendRequest(req *protocol.Request, timeout time.Duration) (*protocol.Response, error) {
	var buf bytes.Buffer
	if err := protocol.EncodeLine(&buf, req); err != nil {
		return nil, rpcerr.New(rpcerr.CodeInternalError, err.Error(), nil)
	}
	line := bytes.TrimRight(buf.Bytes(), "\n")

	if err := b.transport.WriteLine(line); err != nil {
		return nil, rpcerr.New(rpcerr.CodeConnectionClosed, err.Error(), nil)
	}

	reply, err := b.transport.ReadLine(timeout)
	if err != nil {
		switch err {
		case ErrTimeout:
			return nil, rpcerr.Newf(rpcerr.CodeRequestTimeout,
				"request timed out after %s", timeout)
		case ErrClosed:
			return nil, rpcerr.New(rpcerr.CodeConnectionClosed,
				"no response from MCP server", nil)
		default:
			return nil, rpcerr.New(rpcerr.CodeInternalError, err.Error(), nil)
		}
	}

	resp, err := protocol.DecodeResponseLine(reply)
	if err != nil {
		return nil, rpcerr.New(rpcerr.CodeInternalError, err.Error(), nil)
	}
	return resp, nil
}

// Connect performs the initialize handshake and fires the initialized
// notification. The handshake result is cached; a second call returns it
// without touching the worker.
func (b *Bridge) Connect() (map[string]any, error) {
	if b.connected && b.serverInfo != nil {
		return b.serverInfo, nil
	}

	if err := b.Start(); err != nil {
		return nil, err
	}

	init := &protocol.Request{
		JSONRPC: b.cfg.JSONRPC,
		Method:  "initialize",
		Params: map[string]any{
			"protocolVersion": b.cfg.ProtocolVersion,
			"capabilities":    map[string]any{},
			"clientInfo": map[string]any{
				"name":    clientName,
				"version": clientVersion,
			},
		},
	}
	init.SetNumericID(b.nextID)
	b.nextID++

	resp, err := b.SendRequest(init, b.cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, rpcerr.Newf(rpcerr.CodeInternalError,
			"Initialize failed: %s", resp.Error.Message)
	}

	var info map[string]any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &info); err != nil {
			return nil, rpcerr.Newf(rpcerr.CodeInternalError,
				"Initialize returned unparseable result: %v", err)
		}
	}
	b.serverInfo = info

	// Best effort: the worker owes no reply to a notification.
	initialized := &protocol.Request{
		JSONRPC: b.cfg.JSONRPC,
		Method:  "notifications/initialized",
		Params:  map[string]any{},
	}
	if _, err := b.SendRequest(initialized, notifyTimeout); err != nil {
		b.logger.Debug("initialized notification unacknowledged", "error", err)
	}

	b.connected = true
	return b.serverInfo, nil
}

// Execute forwards one request and returns the normalized result field.
// initialize short-circuits to the cached handshake result. A reply carrying
// an error member becomes an internal error with that payload as data.
func (b *Bridge) Execute(req *protocol.Request, tracer *trace.Tracer) (any, error) {
	if req.Method == "initialize" {
		if b.serverInfo != nil {
			return NormalizeResult(anyMap(b.serverInfo)), nil
		}
		return nil, rpcerr.New(rpcerr.CodeInvalidRequest, "Please connect first", nil)
	}

	if !b.connected {
		return nil, rpcerr.New(rpcerr.CodeConnectionClosed, "Not connected", nil)
	}

	if req.IsNotification() {
		req.SetNumericID(b.nextID)
		b.nextID++
	}

	resp, err := b.SendRequest(req, b.cfg.RequestTimeout)
	if err != nil {
		b.mergeTrace(tracer, "mcpCall.server", "mcpCall", false)
		return nil, err
	}

	if resp.Error != nil {
		b.mergeTrace(tracer, "mcpCall.server", "mcpCall", false)
		msg := resp.Error.Message
		if msg == "" {
			msg = "MCP server error"
		}
		return nil, rpcerr.New(rpcerr.CodeInternalError, msg, resp.Error)
	}

	b.mergeTrace(tracer, "executeMcpCall", "executeMcpCall", true)

	var result any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return nil, rpcerr.Newf(rpcerr.CodeInternalError,
				"unparseable result payload: %v", err)
		}
	}
	return NormalizeResult(result), nil
}

// Close tears the worker down. Idempotent; a never-started bridge is a no-op.
func (b *Bridge) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.connected = false
	b.serverInfo = nil

	if !b.started {
		return nil
	}
	if err := b.transport.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}
	return nil
}

// mergeTrace attaches captured worker diagnostics to the call trace.
// Tracing never fails the call path.
func (b *Bridge) mergeTrace(tracer *trace.Tracer, baseSeq, parentSeq string, ok bool) {
	if tracer == nil {
		return
	}
	data := map[string]any{}
	if source, hasLogs := b.transport.(logSource); hasLogs {
		if logs := source.CapturedLogs(); len(logs) > 0 {
			data["logs"] = logs
		}
	}
	tracer.MergeChildTrace(baseSeq, parentSeq, ok, []any{}, data)
}

func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}
