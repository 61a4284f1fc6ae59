package metrics

import (
	"time"

	"github.com/retrostock/retrostock/internal/observability"
)

// Application metric names. The exporter adds the service namespace prefix.
var (
	// Connection metrics
	ActiveConnections = "app_active_connections"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"

	// Catalog domain metrics
	RateLimitDecisionsTotal = "app_rate_limit_decisions_total"
	RateLimitSweepsTotal    = "app_rate_limit_sweeps_total"
	RateLimitKeys           = "app_rate_limit_keys"
	DuplicateGroups         = "app_duplicate_groups"
	ImportRowsTotal         = "app_import_rows_total"
	ImageFetchTotal         = "app_image_fetch_total"
	ContactMessagesTotal    = "app_contact_messages_total"
)

// SetActiveConnections sets the number of open HTTP connections.
func SetActiveConnections(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ActiveConnections,
			float64(count),
			nil,
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}

// RecordRateLimitDecision counts one limiter check for an endpoint.
func RecordRateLimitDecision(endpoint string, allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "rejected"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitDecisionsTotal,
			1,
			map[string]string{
				"endpoint": endpoint,
				"decision": decision,
			},
		)
	}
}

// RecordRateLimitSweep records a sweep pass: removed entries and what is left.
func RecordRateLimitSweep(removed int, remaining int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitSweepsTotal,
			float64(removed),
			nil,
		)
		_ = observability.TelemetrySystem.Gauge(
			RateLimitKeys,
			float64(remaining),
			nil,
		)
	}
}

// SetDuplicateGroups records the size of the last duplicate report.
func SetDuplicateGroups(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			DuplicateGroups,
			float64(count),
			nil,
		)
	}
}

// RecordImportRows counts import rows by mode (append, replace) and status
// (imported, skipped, aborted).
func RecordImportRows(mode, status string, count int) {
	if count <= 0 {
		return
	}
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ImportRowsTotal,
			float64(count),
			map[string]string{
				"mode":   mode,
				"status": status,
			},
		)
	}
}

// RecordImageFetch counts one remote image fetch.
func RecordImageFetch(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ImageFetchTotal,
			1,
			map[string]string{
				"status": status,
			},
		)
	}
}

// RecordContactMessage counts contact submissions by outcome (stored, spam, invalid).
func RecordContactMessage(outcome string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ContactMessagesTotal,
			1,
			map[string]string{
				"outcome": outcome,
			},
		)
	}
}
