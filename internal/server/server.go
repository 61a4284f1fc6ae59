package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	apperrors "github.com/retrostock/retrostock/internal/errors"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/server/handlers"
	servermw "github.com/retrostock/retrostock/internal/server/middleware"
)

// Deps are the services the HTTP surface exposes. A nil Catalog leaves only
// the ops endpoints mounted; an empty AdminToken leaves /admin unmounted.
type Deps struct {
	Catalog    *catalog.Service
	Contact    *contact.Service
	Store      handlers.AdminStore
	Images     *images.Fetcher
	Limiter    *ratelimit.Limiter
	AdminToken string
	MediaDir   string
	Import     importer.Options
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	cfg    config.ServerConfig
	deps   Deps
}

// New creates a new HTTP server instance
func New(cfg config.ServerConfig, deps Deps) *Server {
	r := chi.NewRouter()

	// Standard chi middleware
	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)      // 1. Request ID (early for correlation)
	r.Use(servermw.RequestMetrics) // 2. Metrics (measure everything)
	r.Use(servermw.Recovery)       // 3. Panic recovery

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewNotFoundError("The requested resource was not found")
		HandleError(w, req, err)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		err := apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource")
		HandleError(w, req, err)
	})

	s := &Server{
		router: r,
		cfg:    cfg,
		deps:   deps,
	}

	// Ensure handlers use the centralized error responder
	handlers.SetHTTPErrorResponder(HandleError)

	s.registerRoutes()

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var open atomic.Int64
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       durationOr(s.cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      durationOr(s.cfg.WriteTimeout, 60*time.Second),
		IdleTimeout:       durationOr(s.cfg.IdleTimeout, 120*time.Second),
		ConnState: func(_ net.Conn, state http.ConnState) {
			switch state {
			case http.StateNew:
				metrics.SetActiveConnections(open.Add(1))
			case http.StateClosed, http.StateHijacked:
				metrics.SetActiveConnections(open.Add(-1))
			}
		},
	}
	metrics.SetServerStartTime(time.Now().Unix())

	observability.ServerLogger.Info("Starting HTTP server",
		zap.String("host", s.cfg.Host),
		zap.Int("port", s.cfg.Port),
		zap.String("addr", addr),
		zap.Bool("admin_enabled", s.deps.AdminToken != ""))

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	observability.ServerLogger.Info("Shutting down HTTP server")
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.cfg.Port
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
