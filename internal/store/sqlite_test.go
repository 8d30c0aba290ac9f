package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outlethq/mcp-outlet/internal/trace"
)

func openTestStore(t *testing.T) *TraceStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrace(id string) trace.Trace {
	tr := trace.New(id, "")
	tr.RecordSpan("inputValidation", "", nil)
	tr.RecordSpan("outletHandler", "", map[string]any{"k": "v"})
	return tr.Snapshot(true)
}

func TestSaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrace(ctx, "tools/list", true, sampleTrace("t-1")))

	rec, err := s.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "t-1", rec.TraceID)
	assert.Equal(t, "tools/list", rec.Method)
	assert.True(t, rec.Success)
	require.NotNil(t, rec.EndedAt)
	require.Len(t, rec.Spans, 2)
	assert.Equal(t, "inputValidation", rec.Spans[0].Seq)
	assert.Equal(t, trace.StatusSuccess, rec.Spans[0].Status)
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSaveReplacesSameTraceID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTrace(ctx, "ping", true, sampleTrace("t-dup")))
	require.NoError(t, s.SaveTrace(ctx, "tools/call", false, sampleTrace("t-dup")))

	rec, err := s.Get(ctx, "t-dup")
	require.NoError(t, err)
	assert.Equal(t, "tools/call", rec.Method)
	assert.False(t, rec.Success)

	records, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRecentOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveTrace(ctx, "ping", true, sampleTrace(id)))
		time.Sleep(5 * time.Millisecond)
	}

	records, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c", records[0].TraceID)
	assert.Equal(t, "b", records[1].TraceID)
}
