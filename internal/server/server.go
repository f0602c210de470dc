// Package server exposes the pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chative/sqlagent/internal/agent/model"
	errx "github.com/chative/sqlagent/internal/core/error"
	"github.com/chative/sqlagent/internal/metrics"
	logx "github.com/chative/sqlagent/pkg/logger"
)

const maxBodyBytes = 64 << 10

// Runner answers one user turn.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.Reply, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	// TurnTimeout bounds one pipeline run. Zero means no limit.
	TurnTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server serves POST /v1/chat, GET /healthz and GET /metrics.
type Server struct {
	runner Runner
	opts   Options
	http   *http.Server
}

func New(runner Runner, opts Options) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{runner: runner, opts: opts}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(s.opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/v1/chat", s.chat)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logx.Info().Str("addr", s.opts.Addr).Msg("http server starting")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logx.Info().Msg("http server stopped")
	return nil
}

type chatRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Text      string        `json:"text"`
	SessionID string        `json:"session_id"`
	Outcome   model.Outcome `json:"outcome,omitempty"`
}

type errorResponse struct {
	Error     string `json:"error"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, errx.BadRequest(err), "")
		return
	}

	ctx := r.Context()
	if s.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.TurnTimeout)
		defer cancel()
	}

	reply, err := s.runner.Invoke(ctx, model.QueryInput{SessionID: req.SessionID, Text: req.Text})
	if err != nil {
		logx.Error().Err(err).
			Str("session_id", req.SessionID).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("chat turn failed")
		writeError(w, err, req.SessionID)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Text: reply.Text, SessionID: reply.SessionID, Outcome: reply.Outcome})
}

func writeError(w http.ResponseWriter, err error, sessionID string) {
	writeJSON(w, errx.StatusOf(err), errorResponse{Error: errx.MessageOf(err), SessionID: sessionID})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Warn().Err(err).Msg("write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logx.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
