// Package trace records hierarchical execution spans for one gateway call and
// merges traces reported by nested calls. Tracing is best-effort: malformed
// child data degrades to fallback spans and never fails the primary call path.
package trace

import (
	"fmt"
	"time"
)

// Span statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Span is one named, timed segment of work. Spans form a tree via ParentSeq.
type Span struct {
	Seq       string         `json:"seq"`
	ParentSeq string         `json:"parentSeq,omitempty"`
	StartTime float64        `json:"startTime"`
	Duration  *float64       `json:"duration,omitempty"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	IsValid   bool           `json:"isValid"`
}

// Trace is the finalized snapshot returned to callers. Immutable once built.
type Trace struct {
	TraceID   string         `json:"traceId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   *time.Time     `json:"endTime,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Spans     []Span         `json:"spans"`
	IsValid   bool           `json:"isValid"`
}

// Tracer accumulates spans for a single inbound request. It is owned by one
// dispatcher call; the admission lock guarantees no concurrent use.
type Tracer struct {
	traceID   string
	startTime time.Time
	endTime   *time.Time
	parent    string
	spans     []*Span
	data      map[string]any
}

// New creates a tracer for the given trace id. parent, when non-empty, becomes
// the default parent seq for spans recorded without an explicit one.
func New(traceID string, parent string) *Tracer {
	return &Tracer{
		traceID:   traceID,
		startTime: time.Now(),
		parent:    parent,
	}
}

// TraceID returns the id this tracer was created with.
func (t *Tracer) TraceID() string {
	return t.traceID
}

// RecordSpan closes a still-running previous span (as success) and opens a new
// running span. parentSeq falls back to the tracer's ambient parent.
func (t *Tracer) RecordSpan(name string, parentSeq string, data map[string]any) *Span {
	if last := t.runningSpan(); last != nil {
		endSpan(last, false)
	}

	if parentSeq == "" {
		parentSeq = t.parent
	}

	span := &Span{
		Seq:       name,
		ParentSeq: parentSeq,
		StartTime: nowMillis(),
		Status:    StatusRunning,
		Data:      data,
		IsValid:   true,
	}
	t.spans = append(t.spans, span)
	return span
}

// MergeChildTrace absorbs a trace (or bare span list) reported by a deeper
// call, namespacing merged seqs as "{baseSeq}.{childSeq}". Spans missing their
// own status default to isSuccess. Malformed input degrades to a single
// fallback span.
func (t *Tracer) MergeChildTrace(baseSeq, parentSeq string, isSuccess bool, child any, data map[string]any) {
	status := StatusSuccess
	if !isSuccess {
		status = StatusError
	}
	if data == nil {
		data = map[string]any{}
	}

	switch c := child.(type) {
	case map[string]any:
		if spans, ok := c["spans"].([]any); ok {
			t.mergeSpans(spans, baseSeq, parentSeq, status, data)
			if childData, ok := c["data"].(map[string]any); ok {
				t.mergeTraceData(childData, data)
			}
			return
		}
		t.fallbackSpan(c, baseSeq, parentSeq, status, data)
	case []any:
		t.mergeSpans(c, baseSeq, parentSeq, status, data)
	case []Span:
		generic := make([]any, 0, len(c))
		for _, s := range c {
			generic = append(generic, spanToMap(s))
		}
		t.mergeSpans(generic, baseSeq, parentSeq, status, data)
	default:
		t.fallbackSpan(child, baseSeq, parentSeq, status, data)
	}
}

// Snapshot closes any still-running span using lastSpanSuccess, stamps the end
// time, and returns the finalized trace.
func (t *Tracer) Snapshot(lastSpanSuccess bool) Trace {
	for _, span := range t.spans {
		if span.Status == StatusRunning {
			endSpan(span, !lastSpanSuccess)
		}
	}

	if t.endTime == nil {
		now := time.Now()
		t.endTime = &now
	}

	out := Trace{
		TraceID:   t.traceID,
		StartTime: t.startTime,
		EndTime:   t.endTime,
		Data:      t.data,
		Spans:     make([]Span, len(t.spans)),
		IsValid:   true,
	}
	for i, span := range t.spans {
		out.Spans[i] = *span
	}
	return out
}

func (t *Tracer) runningSpan() *Span {
	if len(t.spans) == 0 {
		return nil
	}
	last := t.spans[len(t.spans)-1]
	if last.Status != StatusRunning {
		return nil
	}
	return last
}

func (t *Tracer) mergeSpans(spans []any, baseSeq, parentSeq, status string, data map[string]any) {
	for _, raw := range spans {
		spanData, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		merged := &Span{
			Seq:       fmt.Sprintf("%s.%s", baseSeq, stringOr(spanData["seq"], "unknown_span")),
			ParentSeq: stringOr(spanData["parentSeq"], parentSeq),
			StartTime: floatOr(spanData["startTime"], nowMillis()),
			Status:    stringOr(spanData["status"], status),
			Error:     stringOr(spanData["error"], ""),
			Data:      mergeMaps(data, mapOr(spanData["data"])),
			IsValid:   false,
		}
		if d, ok := toFloat(spanData["duration"]); ok {
			merged.Duration = &d
		}
		t.spans = append(t.spans, merged)
	}
}

func (t *Tracer) mergeTraceData(childData, data map[string]any) {
	if t.data == nil {
		t.data = map[string]any{}
	}
	for k, v := range data {
		t.data[k] = v
	}

	childTraces, _ := t.data["childTraces"].([]any)
	t.data["childTraces"] = append(childTraces, childData)
}

func (t *Tracer) fallbackSpan(child any, baseSeq, parentSeq, status string, data map[string]any) {
	seq := "unknown_span"
	if m, ok := child.(map[string]any); ok {
		seq = stringOr(m["traceId"], stringOr(m["seq"], seq))
	}

	zero := 0.0
	span := &Span{
		Seq:       fmt.Sprintf("%s.%s", baseSeq, seq),
		ParentSeq: parentSeq,
		StartTime: nowMillis(),
		Duration:  &zero,
		Status:    status,
		Data:      mergeMaps(data, map[string]any{"childTrace": child}),
		IsValid:   false,
	}
	t.spans = append(t.spans, span)
}

func endSpan(span *Span, isError bool) {
	d := nowMillis() - span.StartTime
	span.Duration = &d
	if isError {
		span.Status = StatusError
	} else {
		span.Status = StatusSuccess
	}
}

func nowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}

func spanToMap(s Span) map[string]any {
	m := map[string]any{
		"seq":       s.Seq,
		"startTime": s.StartTime,
		"status":    s.Status,
	}
	if s.ParentSeq != "" {
		m["parentSeq"] = s.ParentSeq
	}
	if s.Duration != nil {
		m["duration"] = *s.Duration
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	if s.Data != nil {
		m["data"] = s.Data
	}
	return m
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func floatOr(v any, fallback float64) float64 {
	if f, ok := toFloat(v); ok {
		return f
	}
	return fallback
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func mapOr(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}

func mergeMaps(base, extra map[string]any) map[string]any {
	if base == nil && extra == nil {
		return nil
	}
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
