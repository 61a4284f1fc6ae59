package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/metrics"
)

// RateLimitRemainingHeader reports how many requests are left in the window.
const RateLimitRemainingHeader = "X-RateLimit-Remaining"

// RateLimit counts every request against endpoint and answers 429 once the
// client's window is exhausted.
func RateLimit(limiter *ratelimit.Limiter, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Check(ratelimit.ClientID(r), endpoint)
			metrics.RecordRateLimitDecision(endpoint, decision.Allowed)
			if !decision.Allowed {
				writeRateLimited(w, r, endpoint, decision)
				return
			}
			if decision.Remaining >= 0 {
				w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(decision.Remaining))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfterSeconds rounds up so clients never retry early.
func retryAfterSeconds(decision ratelimit.Decision) int {
	return max(int(math.Ceil(decision.RetryAfter.Seconds())), 1)
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, endpoint string, decision ratelimit.Decision) {
	seconds := retryAfterSeconds(decision)
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	envelope := errors.NewErrorEnvelope("RATE_LIMITED", decision.Message).
		WithCorrelationID(GetRequestID(r.Context()))
	envelope, _ = envelope.WithContext(map[string]interface{}{
		"endpoint":            endpoint,
		"retry_after_seconds": seconds,
	})
	metrics.RecordError(envelope.Code, http.StatusTooManyRequests)
	writeErrorResponse(w, envelope, http.StatusTooManyRequests)
}
