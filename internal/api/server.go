// Package api exposes the gateway over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/outlethq/mcp-outlet/internal/auth"
	"github.com/outlethq/mcp-outlet/internal/config"
	"github.com/outlethq/mcp-outlet/internal/handler"
	"github.com/outlethq/mcp-outlet/internal/log"
	"github.com/outlethq/mcp-outlet/internal/store"
)

// Executor runs one gateway call and returns its envelope.
type Executor interface {
	Execute(ctx context.Context, in handler.Input, rctx handler.RuntimeContext) handler.Envelope
}

// TraceReader reads archived traces for the inspection endpoints.
type TraceReader interface {
	Recent(ctx context.Context, limit int) ([]store.TraceRecord, error)
	Get(ctx context.Context, traceID string) (store.TraceRecord, error)
}

// Server is the HTTP front of the gateway.
type Server struct {
	cfg      config.APIConfig
	executor Executor
	traces   TraceReader
	logger   *slog.Logger
	httpSrv  *http.Server
}

// NewServer builds a Server from config plus its collaborators.
// traces may be nil, which disables the trace endpoints.
func NewServer(cfg config.APIConfig, executor Executor, traces TraceReader) *Server {
	s := &Server{
		cfg:      cfg,
		executor: executor,
		traces:   traces,
		logger:   log.WithComponent("api"),
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(requireScopes("rpc:call")).Post("/rpc", s.handleRPC)
		if s.traces != nil {
			r.With(requireScopes("traces:read")).Get("/traces", s.handleTraceList)
			r.With(requireScopes("traces:read")).Get("/traces/{traceID}", s.handleTraceGet)
		}
	})
	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.cfg.Listen)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("shutting down api server")
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		tokens := make([]auth.TokenConfig, 0, len(s.cfg.Auth.Tokens))
		for _, t := range s.cfg.Auth.Tokens {
			tokens = append(tokens, auth.TokenConfig{Token: t.Token, Scopes: t.Scopes})
		}

		principal, ok := auth.Authenticate(token, s.cfg.Auth.APIKey, tokens)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

func requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok || !auth.HasAnyScope(principal, scopes...) {
				writeError(w, http.StatusForbidden, "insufficient scope")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
