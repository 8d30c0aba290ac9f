// Package dispatch ties the outlet together: single-flight admission, the
// fixed method table, per-call worker-bridge lifecycle, and uniform response
// assembly.
//
// The dispatcher serializes executions end-to-end behind a process-wide
// admission lock: one call's full request -> worker -> response lifecycle
// completes before the next begins. The worker bridge and its byte channels
// are not safe for concurrent multiplexed use, and span sequencing assumes
// strict ordering.
//
// Method classification:
//   - Local methods (ping, logging/setLevel, notifications/initialized) are
//     computed inline without a worker.
//   - Forwarded methods launch a fresh worker per call via the argument
//     resolver and bridge, forward the request verbatim, and tear the worker
//     down before the lock is released, on every exit path.
//   - Rejected methods always fail MethodNotFound, listing the non-rejected
//     method names.
//
// Error handling: every failure is caught at this boundary and converted to
// one error envelope inside a well-formed JSON-RPC response carrying the
// original id when available. Nothing escapes uncaught.
package dispatch
