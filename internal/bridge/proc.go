package bridge

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// maxStderrBytes caps the amount of stderr captured from the worker process.
const maxStderrBytes = 64 * 1024

// terminationGracePeriod is the time between SIGTERM and SIGKILL on close.
const terminationGracePeriod = 5 * time.Second

// ProcConfig describes the worker subprocess to launch.
type ProcConfig struct {
	// Module and Function are the resolved entry point, run via
	// `uv run python -c "import <module> as _e; _e.<function>()"`.
	Module   string
	Function string
	// CacheDir is the isolated uv install prefix the worker imports from.
	CacheDir string
	// Env holds extra environment variables from the server descriptor.
	Env map[string]string
	// Cwd is the working directory, empty for inherited.
	Cwd string
}

// ProcTransport launches the resolved entry point as a real OS subprocess
// with stdin/stdout redirected to the byte channels and stderr captured.
type ProcTransport struct {
	cfg ProcConfig

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan []byte
	waitCh chan error

	stderrMu sync.Mutex
	stderr   bytes.Buffer

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
}

// NewProcTransport builds a subprocess transport without starting it.
func NewProcTransport(cfg ProcConfig) *ProcTransport {
	return &ProcTransport{cfg: cfg}
}

// Start launches the worker process and the response reader.
func (t *ProcTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("transport already started")
	}

	entry := fmt.Sprintf("import %s as _entry; _entry.%s()", t.cfg.Module, t.cfg.Function)
	cmd := exec.Command("uv", "run", "--no-project", "python", "-c", entry)
	cmd.Dir = t.cfg.Cwd
	cmd.Env = t.buildEnv()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = &cappedWriter{buf: &t.stderr, mu: &t.stderrMu}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start worker process: %w", err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.lines = make(chan []byte, 16)
	t.waitCh = make(chan error, 1)

	go readLines(stdout, t.lines)
	go func() {
		t.waitCh <- cmd.Wait()
	}()

	t.started = true
	return nil
}

// buildEnv mirrors the installer environment so the worker imports from the
// same isolated prefix it was installed into.
func (t *ProcTransport) buildEnv() []string {
	env := os.Environ()
	if t.cfg.CacheDir != "" {
		env = append(env,
			"UV_CACHE_DIR="+t.cfg.CacheDir,
			"UV_LINK_MODE=copy",
			"UV_NO_SYNC=1",
			"UV_COMPILE_BYTECODE=0",
			"UV_NO_PROJECT=1",
			"UV_BREAK_SYSTEM_PACKAGES=1",
			"PYTHONPATH="+filepath.Join(t.cfg.CacheDir, "lib", "site-packages"),
		)
	}
	for k, v := range t.cfg.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// WriteLine writes one line to the worker's stdin.
func (t *ProcTransport) WriteLine(line []byte) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return fmt.Errorf("transport not started")
	}

	if _, err := t.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write request line: %w", err)
	}
	return nil
}

// ReadLine awaits one reply line from the worker's stdout.
func (t *ProcTransport) ReadLine(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("transport not started")
	}
	return awaitLine(t.lines, timeout)
}

// Close signals EOF, waits briefly for a clean exit, then escalates
// SIGTERM -> grace -> SIGKILL. Idempotent; a never-started transport is a
// no-op.
func (t *ProcTransport) Close() error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil
	}

	t.closeOnce.Do(func() {
		_ = t.stdin.Close()

		join := time.NewTimer(joinGracePeriod)
		defer join.Stop()
		select {
		case <-t.waitCh:
			return
		case <-join.C:
		}

		if t.cmd.Process != nil {
			_ = t.cmd.Process.Signal(syscall.SIGTERM)
		}

		grace := time.NewTimer(terminationGracePeriod)
		defer grace.Stop()
		select {
		case <-t.waitCh:
		case <-grace.C:
			if t.cmd.Process != nil {
				_ = t.cmd.Process.Kill()
			}
			<-t.waitCh
		}
	})
	return nil
}

// CapturedLogs returns the worker's captured stderr, one entry per line.
func (t *ProcTransport) CapturedLogs() []string {
	t.stderrMu.Lock()
	defer t.stderrMu.Unlock()

	var logs []string
	for _, line := range strings.Split(t.stderr.String(), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			logs = append(logs, "[ERROR] "+trimmed)
		}
	}
	return logs
}

// cappedWriter tees into buf up to maxStderrBytes and drops the rest.
type cappedWriter struct {
	buf *bytes.Buffer
	mu  *sync.Mutex
}

func (w *cappedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() < maxStderrBytes {
		room := maxStderrBytes - w.buf.Len()
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
