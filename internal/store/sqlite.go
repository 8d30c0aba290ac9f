// Package store archives call traces to SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/outlethq/mcp-outlet/internal/trace"
)

const schema = `
CREATE TABLE IF NOT EXISTS trace_log (
    trace_id   TEXT PRIMARY KEY,
    method     TEXT NOT NULL,
    success    INTEGER NOT NULL,
    started_at TEXT NOT NULL,
    ended_at   TEXT,
    spans      TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_trace_log_created ON trace_log(created_at);
`

// TraceRecord is a persisted trace row.
type TraceRecord struct {
	TraceID   string       `json:"traceId"`
	Method    string       `json:"method"`
	Success   bool         `json:"success"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   *time.Time   `json:"endedAt,omitempty"`
	Spans     []trace.Span `json:"spans"`
}

// TraceStore persists traces to a SQLite database.
type TraceStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the trace database at path.
func Open(path string) (*TraceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer; serialize access through one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &TraceStore{db: db}, nil
}

// Close releases the database handle.
func (s *TraceStore) Close() error {
	return s.db.Close()
}

// SaveTrace archives one completed trace.
func (s *TraceStore) SaveTrace(ctx context.Context, method string, success bool, t trace.Trace) error {
	spans, err := json.Marshal(t.Spans)
	if err != nil {
		return fmt.Errorf("encoding spans: %w", err)
	}

	var endedAt any
	if t.EndTime != nil {
		endedAt = t.EndTime.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO trace_log (trace_id, method, success, started_at, ended_at, spans)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.TraceID, method, boolToInt(success),
		t.StartTime.UTC().Format(time.RFC3339Nano), endedAt, string(spans),
	)
	if err != nil {
		return fmt.Errorf("inserting trace: %w", err)
	}
	return nil
}

// Recent returns up to limit traces, newest first.
func (s *TraceStore) Recent(ctx context.Context, limit int) ([]TraceRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, method, success, started_at, ended_at, spans
		FROM trace_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying traces: %w", err)
	}
	defer rows.Close()

	var records []TraceRecord
	for rows.Next() {
		rec, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get fetches a single trace by id.
func (s *TraceStore) Get(ctx context.Context, traceID string) (TraceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, method, success, started_at, ended_at, spans
		FROM trace_log WHERE trace_id = ?`, traceID)
	if err != nil {
		return TraceRecord{}, fmt.Errorf("querying trace: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return TraceRecord{}, err
		}
		return TraceRecord{}, sql.ErrNoRows
	}
	return scanTrace(rows)
}

func scanTrace(rows *sql.Rows) (TraceRecord, error) {
	var (
		rec       TraceRecord
		success   int
		startedAt string
		endedAt   sql.NullString
		spans     string
	)
	if err := rows.Scan(&rec.TraceID, &rec.Method, &success, &startedAt, &endedAt, &spans); err != nil {
		return TraceRecord{}, fmt.Errorf("scanning trace: %w", err)
	}

	rec.Success = success != 0
	if t, err := time.Parse(time.RFC3339Nano, startedAt); err == nil {
		rec.StartedAt = t
	}
	if endedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, endedAt.String); err == nil {
			rec.EndedAt = &t
		}
	}
	if err := json.Unmarshal([]byte(spans), &rec.Spans); err != nil {
		return TraceRecord{}, fmt.Errorf("decoding spans: %w", err)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
