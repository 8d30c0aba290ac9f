// Command mcp-outlet is a JSON-RPC gateway that forwards MCP calls to
// uv-launched Python workers.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/outlethq/mcp-outlet/internal/api"
	"github.com/outlethq/mcp-outlet/internal/config"
	"github.com/outlethq/mcp-outlet/internal/dispatch"
	"github.com/outlethq/mcp-outlet/internal/doctor"
	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/lock"
	"github.com/outlethq/mcp-outlet/internal/log"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/store"
	"github.com/outlethq/mcp-outlet/internal/tui"
	"github.com/outlethq/mcp-outlet/internal/uvx"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = runStart(os.Args[2:])
	case "call":
		err = runCall(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	case "doctor":
		err = runDoctor(os.Args[2:])
	case "watch":
		err = runWatch(os.Args[2:])
	case "version":
		fmt.Printf("mcp-outlet %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`mcp-outlet - JSON-RPC gateway for uv-launched MCP servers

Usage:
  mcp-outlet start [config.yaml]          run the gateway
  mcp-outlet call [config.yaml] [file]    execute one request (file or stdin) and print the envelope
  mcp-outlet doctor [config.yaml]         validate config and environment
  mcp-outlet config lock <config.yaml>    record the config checksum
  mcp-outlet config check <config.yaml>   verify the config checksum
  mcp-outlet watch <url> <token>          interactive trace monitor
  mcp-outlet version                      print version
`)
}

func configPath(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "config.yaml"
}

func runStart(args []string) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return err
	}
	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")

	pidLock, err := lock.Acquire(filepath.Join(filepath.Dir(cfg.State.Path), "mcp-outlet.pid"))
	if err != nil {
		return err
	}
	defer pidLock.Release()

	traces, err := store.Open(cfg.State.Path)
	if err != nil {
		return err
	}
	defer traces.Close()

	dispatcher := newDispatcher(cfg, traces)

	if !cfg.API.Enabled {
		return fmt.Errorf("api.enabled is false; nothing to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting gateway",
		"version", version,
		"listen", cfg.API.Listen,
		"cache_dir", cfg.Cache.Dir,
	)

	server := api.NewServer(cfg.API, dispatcher, traces)
	return server.Start(ctx)
}

// runCall executes a single request outside the HTTP server and prints
// the envelope to stdout. Logs go to stderr so the output stays parseable.
func runCall(args []string) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return err
	}
	log.Setup(cfg.Service.LogLevel)

	var body []byte
	if len(args) > 1 {
		body, err = os.ReadFile(args[1])
	} else {
		body, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("reading request: %w", err)
	}

	req, err := protocol.DecodeRequest(body)
	if err != nil {
		return err
	}

	traces, err := store.Open(cfg.State.Path)
	if err != nil {
		return err
	}
	defer traces.Close()

	dispatcher := newDispatcher(cfg, traces)
	env := dispatcher.Execute(context.Background(), handler.Input{Data: req}, handler.RuntimeContext{})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	if !env.Success {
		os.Exit(1)
	}
	return nil
}

func newDispatcher(cfg *config.Config, traces *store.TraceStore) *dispatch.Dispatcher {
	return dispatch.New(dispatch.Options{
		Resolver:       uvx.NewResolver(uvx.NewUV(cfg.Cache.Dir), cfg.Worker.InstallTimeout),
		NewBridge:      dispatch.NewProcBridgeFactory(cfg.Cache.Dir, cfg.Worker.RequestTimeout),
		Sink:           traces,
		RequestTimeout: cfg.Worker.RequestTimeout,
	})
}

func runConfig(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mcp-outlet config lock|check <config.yaml>")
	}

	path := args[1]
	switch args[0] {
	case "lock":
		if err := config.WriteChecksum(path); err != nil {
			return err
		}
		fmt.Printf("checksum recorded for %s\n", path)
		return nil
	case "check":
		if err := config.VerifyChecksum(path); err != nil {
			return err
		}
		fmt.Printf("checksum ok for %s\n", path)
		return nil
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func runDoctor(args []string) error {
	cfg, err := config.Load(configPath(args))
	if err != nil {
		return err
	}

	result := doctor.New(cfg).Validate()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

func runWatch(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: mcp-outlet watch <url> <token>")
	}
	return tui.NewMonitor(args[0], args[1]).Run()
}
