package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/observability"
)

// statusRecorder captures the status code and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Surface names the part of the shop a path belongs to.
func Surface(path string) string {
	switch {
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return "storefront"
	case path == "/admin" || strings.HasPrefix(path, "/admin/"):
		return "admin"
	case strings.HasPrefix(path, "/media/"):
		return "media"
	default:
		return "ops"
	}
}

// getEndpointPattern returns the chi route pattern so item IDs and slugs
// never become label values.
func getEndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version", "/metrics", "/":
		return path
	}
	switch Surface(path) {
	case "media":
		return "/media/*"
	case "storefront":
		return "/api/unknown"
	case "admin":
		return "/admin/unknown"
	}
	return "/unknown"
}

// RequestMetrics records request counts, latency and sizes per route pattern
// and logs one line per request.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		requestSize := r.ContentLength
		if requestSize < 0 {
			requestSize = 0
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := getEndpointPattern(r)
		surface := Surface(r.URL.Path)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"surface":  surface,
			"status":   status,
		}
		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}

		_ = observability.TelemetrySystem.Counter("http_requests_total", 1, labels)
		_ = observability.TelemetrySystem.Histogram("http_request_duration_ms", duration, labels)
		_ = observability.TelemetrySystem.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = observability.TelemetrySystem.Gauge("http_response_size_bytes", float64(rec.bytes), sizeLabels)

		if rec.status >= 400 {
			errorType := "client_error"
			if rec.status >= 500 {
				errorType = "server_error"
			}
			_ = observability.TelemetrySystem.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"surface":    surface,
				"status":     status,
				"error_type": errorType,
			})
		}

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("endpoint", endpoint),
			zap.String("surface", surface),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration),
			zap.Int64("request_size", requestSize),
			zap.Int64("response_size", rec.bytes),
			zap.String("request_id", GetRequestID(r.Context())),
		}
		// Probes and media hits are noisy at info.
		if surface == "ops" || surface == "media" {
			observability.Debug("HTTP request completed", fields...)
			return
		}
		observability.Info("HTTP request completed", fields...)
	})
}
