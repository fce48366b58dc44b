// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package server exposes the draft-PR agent over HTTP: a chi router with a
// huma API, per-session turn serialization, bearer auth and rate limiting.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	"github.com/modelsmith-dev/modelsmith/internal/generate"
	"github.com/modelsmith-dev/modelsmith/internal/store"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
	"github.com/modelsmith-dev/modelsmith/pkg/health"
)

// Version is reported in the OpenAPI document.
var Version = "dev"

// TurnHandler runs one analyst turn. *agent.Orchestrator implements it.
type TurnHandler interface {
	HandleTurn(ctx context.Context, t agent.Turn) (*agent.Reply, error)
}

// SessionReader lists and fetches stored sessions.
type SessionReader interface {
	Get(ctx context.Context, id string) (*store.Session, error)
	List(ctx context.Context) ([]*store.Session, error)
}

// HealthSource reports provider health. *provider.Registry implements it.
type HealthSource interface {
	Health(ctx context.Context) []health.Metrics
}

// Config holds HTTP server settings.
type Config struct {
	ListenAddr  string
	CORSOrigins []string
	RateLimit   RateLimitConfig
	// TokenValidator enables bearer auth when set.
	TokenValidator TokenValidator
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Deps are the services behind the routes. Agent is required; the other
// routes answer 503 when their dependency is missing.
type Deps struct {
	Agent      TurnHandler
	Translator generate.Translator
	Sessions   SessionReader
	Providers  HealthSource
	// NewSessionID names sessions for turns that arrive without one.
	NewSessionID func() string
}

// Server wraps a chi router with a huma API and an HTTP server.
type Server struct {
	router chi.Router
	api    huma.API
	cfg    Config
	deps   Deps
	lanes  *agent.LanePool

	done      chan struct{}
	closeOnce sync.Once
}

// New builds the router, registers every route and starts the rate
// limiter's sweeper. Call Close when done.
func New(cfg Config, deps Deps) (*Server, error) {
	if cfg.ListenAddr == "" {
		return nil, mserr.New(mserr.CodeServerConfigInvalid, "listen address is required")
	}
	if deps.Agent == nil {
		return nil, mserr.New(mserr.CodeServerConfigInvalid, "an agent is required")
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return nil, err
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Turns wait on model calls and several hosting round trips.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}

	s := &Server{
		cfg:   cfg,
		deps:  deps,
		lanes: agent.NewLanePool(),
		done:  make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(cfg.RateLimit, s.done))
	r.Use(authMiddleware(cfg.TokenValidator))

	humaConfig := huma.DefaultConfig("Modelsmith", Version)
	humaConfig.Info.Description = "Draft pull requests for analytics model files from natural-language requests"
	s.api = humachi.New(r, humaConfig)
	s.router = r

	s.registerRoutes()
	return s, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// API returns the huma API, used to render the OpenAPI document.
func (s *Server) API() huma.API {
	return s.api
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// releases every session lane.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return mserr.Wrapf(err, mserr.CodeServerStartFailure, "listening on %s", s.cfg.ListenAddr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	slog.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Close()
		if err != nil {
			return mserr.Wrap(err, mserr.CodeServerStartFailure, "serving")
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)
	s.Close()
	if shutdownErr != nil {
		return mserr.Wrap(shutdownErr, mserr.CodeServerShutdownFailure, "shutting down")
	}
	slog.Info("server stopped")
	return <-errCh
}

// Close stops the rate limiter sweeper and the session lanes. Queued turns
// still run. It is safe to call more than once.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.lanes.Close()
	})
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			// Browsers reject a wildcard origin with credentials.
			allowCredentials = false
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	})
}
