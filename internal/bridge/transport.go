// Package bridge owns one worker execution unit and exchanges line-delimited
// JSON-RPC with it over two unidirectional byte channels, emulating a stdio
// transport. A bridge serves exactly one forwarded call and is never reused.
package bridge

import (
	"bufio"
	"errors"
	"io"
	"time"
)

// Close joins the worker for at most this long before giving up on it.
const joinGracePeriod = 2 * time.Second

// maxLineBytes bounds a single worker reply line.
const maxLineBytes = 4 * 1024 * 1024

// Sentinel transport failures. The bridge classifies these into the JSON-RPC
// error taxonomy before they reach the dispatcher.
var (
	// ErrTimeout reports that no reply line arrived within the bound.
	ErrTimeout = errors.New("request timed out")
	// ErrClosed reports that the response channel closed before a reply.
	ErrClosed = errors.New("connection closed")
)

// Transport is the byte-channel capability the bridge runs on: one line out,
// one line awaited, shutdown. Implementations: PipeTransport (in-process
// worker goroutine) and ProcTransport (uv subprocess).
type Transport interface {
	// Start launches the worker and returns immediately.
	Start() error
	// WriteLine writes one JSON line to the worker's request channel.
	WriteLine(line []byte) error
	// ReadLine blocks for at most timeout awaiting one reply line.
	ReadLine(timeout time.Duration) ([]byte, error)
	// Close signals end-of-stream, joins the worker with a bounded wait, and
	// releases both channels. Must be idempotent.
	Close() error
}

// logSource is implemented by transports that capture worker diagnostics for
// trace enrichment.
type logSource interface {
	CapturedLogs() []string
}

// readLines pumps lines from r into out until EOF or error, then closes out.
func readLines(r io.Reader, out chan<- []byte) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := make([]byte, len(scanner.Bytes()))
		copy(line, scanner.Bytes())
		out <- line
	}
	close(out)
}

// awaitLine selects one line from lines within timeout.
func awaitLine(lines <-chan []byte, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-lines:
		if !ok {
			return nil, ErrClosed
		}
		return line, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}
