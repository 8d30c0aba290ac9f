package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/protocol"
	"github.com/outlethq/mcp-outlet/internal/store"
)

const maxRequestBody = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRPC decodes one JSON-RPC request from the body, runs it through
// the gateway and writes the resulting envelope body.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body")
		return
	}

	// Platform adapters may wrap the request as {"data": <request>}.
	var wrapper struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && len(wrapper.Data) > 0 {
		body = wrapper.Data
	}

	req, err := protocol.DecodeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	in := handler.Input{
		Data:    req,
		Headers: flattenHeaders(r.Header),
	}

	env := s.executor.Execute(r.Context(), in, handler.RuntimeContext{})
	if env.Success {
		writeJSON(w, env.StatusCode, env.Data)
		return
	}
	writeJSON(w, env.StatusCode, env.Error)
}

func (s *Server) handleTraceList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.traces.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing traces", "error", err)
		writeError(w, http.StatusInternalServerError, "listing traces")
		return
	}
	if records == nil {
		records = []store.TraceRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"traces": records})
}

func (s *Server) handleTraceGet(w http.ResponseWriter, r *http.Request) {
	traceID := chi.URLParam(r, "traceID")

	rec, err := s.traces.Get(r.Context(), traceID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "trace not found")
		return
	}
	if err != nil {
		s.logger.Error("fetching trace", "trace_id", traceID, "error", err)
		writeError(w, http.StatusInternalServerError, "fetching trace")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}
