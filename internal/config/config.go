package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the user config file
// (~/.config/retrostock/config.yaml or --config), then RETROSTOCK_* environment
// variables (optionally loaded from .env), then runtime overrides from flags.
type Config struct {
	Server         ServerConfig                 `mapstructure:"server"`
	Store          StoreConfig                  `mapstructure:"store"`
	Admin          AdminConfig                  `mapstructure:"admin"`
	Catalog        CatalogConfig                `mapstructure:"catalog"`
	Images         ImagesConfig                 `mapstructure:"images"`
	Contact        ContactConfig                `mapstructure:"contact"`
	Logging        LoggingConfig                `mapstructure:"logging"`
	Metrics        MetricsConfig                `mapstructure:"metrics"`
	Health         HealthConfig                 `mapstructure:"health"`
	RateLimits     map[string]RateLimitOverride `mapstructure:"rate_limits"`
	RateLimitSweep time.Duration                `mapstructure:"rate_limit_sweep"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// StoreConfig selects the database driver and location.
// Driver is one of libsql (default), sqlite or postgres.
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AdminConfig guards the /admin API. An empty token disables it.
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// CatalogConfig tunes storefront listings and the duplicate report.
type CatalogConfig struct {
	ClassicConsoles []string `mapstructure:"classic_consoles"`
	PageSize        int      `mapstructure:"page_size"`
	MaxPageSize     int      `mapstructure:"max_page_size"`
	FeaturedLimit   int      `mapstructure:"featured_limit"`
}

// ImagesConfig controls remote image fetching and local thumbnails.
type ImagesConfig struct {
	MediaDir          string        `mapstructure:"media_dir"`
	MaxBytes          int64         `mapstructure:"max_bytes"`
	MaxPixels         int64         `mapstructure:"max_pixels"`
	ThumbSize         int           `mapstructure:"thumb_size"`
	JPEGQuality       int           `mapstructure:"jpeg_quality"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Concurrency       int           `mapstructure:"concurrency"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// ContactConfig bounds contact form fields.
type ContactConfig struct {
	MaxNameLength    int `mapstructure:"max_name_length"`
	MaxSubjectLength int `mapstructure:"max_subject_length"`
	MinMessageLength int `mapstructure:"min_message_length"`
	MaxMessageLength int `mapstructure:"max_message_length"`
}

// RateLimitOverride replaces fields of a built-in endpoint rule, or defines
// a new endpoint when all fields are set. Zero values keep the default.
type RateLimitOverride struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
	Message     string        `mapstructure:"message"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level (simple, structured)
	Profile string `mapstructure:"profile"`
}

// DefaultMetricsPort is where the Prometheus exporter listens unless configured.
const DefaultMetricsPort = 9090

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated exporter port; /metrics on the main port proxies it.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
