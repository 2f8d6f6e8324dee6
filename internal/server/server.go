// Package server exposes the HTTP capture surface of the Parley agent:
// a multipart WAV upload endpoint for one-shot turns, a WebSocket endpoint
// for live browser capture (Opus frames), session inspection and control
// routes, Prometheus metrics, and health probes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/parley/internal/endpoint"
	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/turn"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	// maxUploadBytes bounds multipart WAV uploads (10 MiB is over five
	// minutes of 16 kHz mono PCM).
	maxUploadBytes = 10 << 20
)

// Server wires the conversation session to its HTTP front-ends.
type Server struct {
	addr    string
	sess    *session.Session
	epCfg   endpoint.Config
	metrics *observe.Metrics
	healthH *health.Handler
	log     *slog.Logger

	// seq numbers utterances across all capture surfaces.
	seq atomic.Uint64
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics overrides the metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health probe handler. When nil, a handler with no
// readiness checks is used.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.healthH = h }
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server for the given session and endpointing config. The
// endpointing config is used by the WebSocket capture path; uploads bypass
// the endpointer.
func New(addr string, sess *session.Session, epCfg endpoint.Config, opts ...Option) (*Server, error) {
	if sess == nil {
		return nil, errors.New("server: session must not be nil")
	}
	s := &Server{
		addr:  addr,
		sess:  sess,
		epCfg: epCfg,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.healthH == nil {
		s.healthH = health.New()
	}
	return s, nil
}

// Handler builds the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turns", s.handleUpload)
	mux.HandleFunc("GET /v1/history", s.handleHistory)
	mux.HandleFunc("POST /v1/clear", s.handleClear)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("GET /v1/stream", s.handleStream)

	mux.Handle("GET /metrics", promhttp.Handler())
	s.healthH.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// turnView is the JSON projection of a [turn.Turn].
type turnView struct {
	ID         string    `json:"id"`
	Seq        uint64    `json:"seq"`
	UserText   string    `json:"user_text"`
	BotText    string    `json:"bot_text"`
	Status     string    `json:"status"`
	Command    string    `json:"command,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func viewOf(t *turn.Turn) turnView {
	v := turnView{
		ID:         t.ID,
		Seq:        t.Seq,
		UserText:   t.UserText,
		BotText:    t.BotText,
		Status:     string(t.Status),
		Command:    t.Command,
		StartedAt:  t.StartedAt,
		FinishedAt: t.FinishedAt,
	}
	if t.Err != nil {
		v.Error = t.Err.Error()
	}
	return v
}

// errorBody is the JSON error response shape.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
