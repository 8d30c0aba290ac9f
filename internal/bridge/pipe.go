package bridge

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// WorkerFunc is an in-process worker entry point. It reads line-delimited
// JSON-RPC requests from stdin and writes replies to stdout, exactly as an
// external stdio server would. It must return when stdin reaches EOF.
type WorkerFunc func(stdin io.Reader, stdout io.Writer) error

// PipeTransport runs a WorkerFunc in its own goroutine with its input and
// output rebound to in-process pipes for the goroutine's lifetime. The
// caller's own standard streams are never touched.
type PipeTransport struct {
	worker WorkerFunc

	requestW  *io.PipeWriter // app -> worker
	requestR  *io.PipeReader
	responseR *io.PipeReader // worker -> app
	responseW *io.PipeWriter

	lines chan []byte
	done  chan struct{}

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
}

// NewPipeTransport wraps worker without starting it.
func NewPipeTransport(worker WorkerFunc) *PipeTransport {
	return &PipeTransport{worker: worker}
}

// Start allocates both channels and launches the worker goroutine.
func (t *PipeTransport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("transport already started")
	}

	t.requestR, t.requestW = io.Pipe()
	t.responseR, t.responseW = io.Pipe()
	t.lines = make(chan []byte, 16)
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		err := t.worker(t.requestR, t.responseW)
		// EOF to the app side once the worker returns, error or not, and
		// fail any writer still targeting the dead worker's stdin.
		_ = t.responseW.CloseWithError(err)
		_ = t.requestR.Close()
	}()
	go readLines(t.responseR, t.lines)

	t.started = true
	return nil
}

// WriteLine writes one line into the worker's stdin.
func (t *PipeTransport) WriteLine(line []byte) error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return fmt.Errorf("transport not started")
	}

	if _, err := t.requestW.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write request line: %w", err)
	}
	return nil
}

// ReadLine awaits one reply line from the worker's stdout.
func (t *PipeTransport) ReadLine(timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil, fmt.Errorf("transport not started")
	}
	return awaitLine(t.lines, timeout)
}

// Close signals EOF on the request channel and joins the worker goroutine
// with a bounded wait. Safe to call repeatedly; a never-started transport is
// a no-op.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return nil
	}

	t.closeOnce.Do(func() {
		_ = t.requestW.Close()

		timer := time.NewTimer(joinGracePeriod)
		defer timer.Stop()
		select {
		case <-t.done:
		case <-timer.C:
			// Worker ignored EOF; tear the pipes down under it.
		}

		_ = t.requestR.Close()
		_ = t.responseR.Close()
		_ = t.responseW.Close()
	})
	return nil
}
