package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/metrics"
	"github.com/retrostock/retrostock/internal/observability"
)

// AdminAuth requires "Authorization: Bearer <token>". Failed attempts count
// against the admin-login limit; while that limit is exhausted the client is
// refused even with the right token. An empty token refuses everyone.
func AdminAuth(token string, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := ratelimit.ClientID(r)
			if decision := limiter.Peek(client, ratelimit.EndpointAdminLogin); !decision.Allowed {
				metrics.RecordRateLimitDecision(ratelimit.EndpointAdminLogin, false)
				writeRateLimited(w, r, ratelimit.EndpointAdminLogin, decision)
				return
			}

			if token != "" && validBearer(r.Header.Get("Authorization"), token) {
				next.ServeHTTP(w, r)
				return
			}

			decision := limiter.Check(client, ratelimit.EndpointAdminLogin)
			metrics.RecordRateLimitDecision(ratelimit.EndpointAdminLogin, decision.Allowed)
			if !decision.Allowed {
				writeRateLimited(w, r, ratelimit.EndpointAdminLogin, decision)
				return
			}

			observability.Warn("Admin authentication failed",
				zap.String("client_id", client),
				zap.String("path", r.URL.Path))

			envelope := errors.NewErrorEnvelope("UNAUTHORIZED", "missing or invalid admin token").
				WithCorrelationID(GetRequestID(r.Context()))
			metrics.RecordError(envelope.Code, http.StatusUnauthorized)
			w.Header().Set("WWW-Authenticate", `Bearer realm="retrostock-admin"`)
			writeErrorResponse(w, envelope, http.StatusUnauthorized)
		})
	}
}

func validBearer(header, token string) bool {
	scheme, credential, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	credential = strings.TrimSpace(credential)
	return subtle.ConstantTimeCompare([]byte(credential), []byte(token)) == 1
}
