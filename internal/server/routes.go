package server

import (
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core/ratelimit"
	apperrors "github.com/retrostock/retrostock/internal/errors"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/server/handlers"
	servermw "github.com/retrostock/retrostock/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)

	// Metrics endpoint (in server package to access HandleError)
	s.router.Get("/metrics", MetricsHandler)

	if s.deps.Catalog == nil {
		return
	}

	s.registerPublicRoutes()
	s.registerMediaRoutes()
	s.registerAdminRoutes()
}

func (s *Server) registerPublicRoutes() {
	storefront := handlers.NewStorefront(s.deps.Catalog, s.deps.Contact)
	limit := func(endpoint string) func(http.Handler) http.Handler {
		return servermw.RateLimit(s.deps.Limiter, endpoint)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/home", storefront.Home)
		r.Get("/categories", storefront.Categories)
		r.Get("/categories/{slug}", storefront.Category)
		r.Get("/consoles/{slug}", storefront.Console)
		r.Get("/items/{id}", storefront.Item)
		r.With(limit(ratelimit.EndpointSearch)).Get("/search", storefront.Search)
		if s.deps.Contact != nil {
			r.With(limit(ratelimit.EndpointContact)).Post("/contact", storefront.Contact)
		}
	})
}

func (s *Server) registerMediaRoutes() {
	dir := strings.TrimSpace(s.deps.MediaDir)
	if dir == "" {
		return
	}
	s.router.Handle("/media/*", http.StripPrefix("/media/", mediaHandler(dir)))
}

// mediaHandler serves files under dir without directory listings.
func mediaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			HandleError(w, r, apperrors.NewNotFoundError("The requested resource was not found"))
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		files.ServeHTTP(w, r)
	})
}

func (s *Server) registerAdminRoutes() {
	logger := observability.ServerLogger
	if s.deps.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin API disabled (no admin token configured)")
		}
		return
	}

	admin := handlers.NewAdmin(handlers.AdminConfig{
		Catalog:        s.deps.Catalog,
		Store:          s.deps.Store,
		Images:         s.deps.Images,
		Limiter:        s.deps.Limiter,
		Import:         s.deps.Import,
		MaxUploadBytes: s.cfg.MaxUploadBytes,
	})
	limit := func(endpoint string) func(http.Handler) http.Handler {
		return servermw.RateLimit(s.deps.Limiter, endpoint)
	}

	s.router.Route("/admin", func(r chi.Router) {
		r.Use(servermw.AdminAuth(s.deps.AdminToken, s.deps.Limiter))

		r.Get("/categories", admin.ListCategories)
		r.Post("/categories", admin.CreateCategory)
		r.Put("/categories/{id}", admin.UpdateCategory)
		r.Delete("/categories/{id}", admin.DeleteCategory)

		r.Get("/consoles", admin.ListConsoles)
		r.Post("/consoles", admin.CreateConsole)
		r.Put("/consoles/{id}", admin.UpdateConsole)
		r.Delete("/consoles/{id}", admin.DeleteConsole)

		r.Get("/items", admin.ListItems)
		r.Post("/items", admin.CreateItem)
		r.Get("/items/{id}", admin.GetItem)
		r.Put("/items/{id}", admin.UpdateItem)
		r.Delete("/items/{id}", admin.DeleteItem)
		r.With(limit(ratelimit.EndpointAdminImageFetch)).Post("/items/{id}/image", admin.FetchItemImage)

		r.With(limit(ratelimit.EndpointAdminImport)).Post("/import", admin.Import)
		r.Get("/duplicates", admin.Duplicates)

		r.Get("/contact", admin.ListContact)
		r.Post("/contact/{id}/read", admin.MarkContactRead)

		r.Get("/rate-limits", admin.RateLimits)
		r.Delete("/rate-limits/{client}", admin.ResetRateLimit)

		// Signal delivery (e.g. SIGHUP to reload config) behind the same token.
		r.Post("/signal", signals.NewHTTPHandler(signals.HTTPConfig{
			TokenAuth: s.deps.AdminToken,
			RateLimit: 10,
			RateBurst: 5,
		}).ServeHTTP)
	})

	if logger != nil {
		logger.Info("Admin API enabled", zap.String("path", "/admin"), zap.String("auth", "bearer token"))
		logger.Warn("Admin API enabled - ensure this server is not exposed without TLS")
	}
}
