// Package server assembles the HTTP surface: router, middleware chain, and
// lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
	"github.com/rs/cors"

	"github.com/hearthbooks/hearthbooks/internal/httpx"
	"github.com/hearthbooks/hearthbooks/pkg/config"
)

// RouteRegistrar mounts a handler's routes on a router.
type RouteRegistrar interface {
	Register(r *mux.Router)
}

// RegistrarFunc adapts a plain function to RouteRegistrar.
type RegistrarFunc func(r *mux.Router)

// Register implements RouteRegistrar.
func (f RegistrarFunc) Register(r *mux.Router) { f(r) }

// Options carries everything New needs to assemble the server.
type Options struct {
	Config       *config.Config
	Logger       *slog.Logger
	SessionStore sessions.Store
	Tokens       TokenValidator
	Roles        RoleResolver

	// Public mounts under / with no auth (register, login, oauth).
	Public []RouteRegistrar
	// Authed mounts under / behind the auth middleware (me, projects).
	Authed []RouteRegistrar
	// ProjectScoped mounts behind auth plus per-project role resolution.
	ProjectScoped []RouteRegistrar
}

// Server is the assembled HTTP server
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds the router and wraps it in an http.Server.
func New(opts Options) *Server {
	root := mux.NewRouter()
	root.Use(
		recoveryMiddleware(opts.Logger),
		loggingMiddleware(opts.Logger),
		metricsMiddleware(),
		rateLimitMiddleware(opts.Config.Server.RateLimitPerSecond, opts.Config.Server.RateLimitBurst),
	)

	root.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	root.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)

	for _, reg := range opts.Public {
		reg.Register(root)
	}

	authed := root.NewRoute().Subrouter()
	authed.Use(authMiddleware(opts.SessionStore, opts.Tokens))
	for _, reg := range opts.Authed {
		reg.Register(authed)
	}

	scoped := authed.NewRoute().Subrouter()
	scoped.Use(projectScopeMiddleware(opts.Roles, opts.Logger))
	for _, reg := range opts.ProjectScoped {
		reg.Register(scoped)
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   opts.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", opts.Config.Server.Host, opts.Config.Server.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: opts.Logger,
	}
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
