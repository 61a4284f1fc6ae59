// Package config provides centralized configuration management for retrostock.
// Defaults are registered on a private viper instance, then overlaid by the
// user config file, RETROSTOCK_* environment variables (a .env file in the
// working directory is loaded first when present) and runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/retrostock/retrostock/internal/appid"
)

var (
	appConfig    *Config
	configMu     sync.RWMutex
	appIdentity  *appidentity.Identity
	explicitPath string
	usedFile     string
)

// SetConfigFile pins the config file used by Load (the --config flag).
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	explicitPath = strings.TrimSpace(path)
}

// ConfigFileUsed reports the file read by the last Load, if any.
func ConfigFileUsed() string {
	configMu.RLock()
	defer configMu.RUnlock()
	return usedFile
}

// Load builds the configuration. Runtime overrides use dotted keys
// (e.g. "server.port") and win over every other layer.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	// .env is optional; a missing file is the common case.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	configMu.RLock()
	path := explicitPath
	configMu.RUnlock()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range userConfigDirs() {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(strings.TrimSuffix(envPrefix(), "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for _, overrides := range runtimeOverrides {
		for key, value := range overrides {
			v.Set(key, value)
		}
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if strings.TrimSpace(cfg.Images.MediaDir) == "" {
		cfg.Images.MediaDir = DefaultMediaDir()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configMu.Lock()
	appConfig = cfg
	usedFile = v.ConfigFileUsed()
	configMu.Unlock()

	return cfg, nil
}

// Validate rejects values that would make the service misbehave at runtime.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Store.Driver)) {
	case "", "libsql", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Catalog.PageSize <= 0 || c.Catalog.MaxPageSize < c.Catalog.PageSize {
		return fmt.Errorf("invalid config: catalog.page_size must be positive and <= catalog.max_page_size")
	}
	if c.RateLimitSweep <= 0 {
		return fmt.Errorf("invalid config: rate_limit_sweep must be positive")
	}
	for endpoint, override := range c.RateLimits {
		if override.Window < 0 || override.MaxRequests < 0 {
			return fmt.Errorf("invalid config: rate_limits.%s has negative values", endpoint)
		}
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_bytes", 10<<20)

	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	v.SetDefault("admin.token", "")

	v.SetDefault("catalog.classic_consoles", []string{"NES", "SNES", "N64"})
	v.SetDefault("catalog.page_size", 24)
	v.SetDefault("catalog.max_page_size", 100)
	v.SetDefault("catalog.featured_limit", 8)

	v.SetDefault("images.media_dir", "")
	v.SetDefault("images.max_bytes", 5<<20)
	v.SetDefault("images.max_pixels", 25_000_000)
	v.SetDefault("images.thumb_size", 512)
	v.SetDefault("images.jpeg_quality", 85)
	v.SetDefault("images.timeout", "15s")
	v.SetDefault("images.requests_per_second", 2.0)
	v.SetDefault("images.concurrency", 4)
	v.SetDefault("images.user_agent", "retrostock-image-fetcher/1.0")

	v.SetDefault("contact.max_name_length", 100)
	v.SetDefault("contact.max_subject_length", 200)
	v.SetDefault("contact.min_message_length", 10)
	v.SetDefault("contact.max_message_length", 5000)

	v.SetDefault("rate_limits", map[string]any{})
	v.SetDefault("rate_limit_sweep", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", DefaultMetricsPort)

	v.SetDefault("health.enabled", true)
}

func envPrefix() string {
	if appIdentity == nil || strings.TrimSpace(appIdentity.EnvPrefix) == "" {
		return appid.DefaultEnvPrefix
	}
	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// userConfigDirs returns XDG config directories to search, current name first.
func userConfigDirs() []string {
	configName, binaryName := appNamesForPaths()
	dirs := []string{}
	if dir := gfconfig.GetAppConfigDir(configName); dir != "" {
		dirs = append(dirs, dir)
	}
	if binaryName != configName {
		if dir := gfconfig.GetAppConfigDir(binaryName); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "retrostock" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "retrostock"
	binaryName = "retrostock"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	configName, binaryName := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + binaryName + ".db"
	}
	return filepath.Join(dataDir, binaryName+".db")
}

// DefaultMediaDir returns where fetched images and thumbnails are written.
func DefaultMediaDir() string {
	configName, _ := appNamesForPaths()
	dataDir := gfconfig.GetAppDataDir(configName)
	if strings.TrimSpace(dataDir) == "" {
		return "./media"
	}
	return filepath.Join(dataDir, "media")
}
