package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/contact"
	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	errwrap "github.com/retrostock/retrostock/internal/errors"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/server"
	"github.com/retrostock/retrostock/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the storefront and admin HTTP server",
	Long: `Start the HTTP server with graceful shutdown support.

The public catalog API is served under /api, stored images under /media and
the admin API under /admin (only when admin.token is configured).

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload config and re-apply rate limit overrides

The server drains requests, stops the rate limiter sweeper, closes the
database and flushes logs on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		namespace := identity.TelemetryNamespace()

		overrides := serveOverrides(cmd)
		cfg, err := config.Load(ctx, overrides)
		if err != nil {
			return errwrap.WrapConfigInvalid(ctx, err, "failed to load configuration")
		}

		observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)

		if cfg.Metrics.Enabled {
			if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
				observability.ServerLogger.Error("Failed to initialize metrics",
					zap.Error(err))
				return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
			}
		}

		observability.ServerLogger.Info("Initializing server",
			zap.String("service", identity.BinaryName),
			zap.String("namespace", namespace),
			zap.String("version", versionInfo.Version),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("store_driver", cfg.Store.Driver),
			zap.Bool("admin_enabled", cfg.Admin.Token != ""),
			zap.String("config_file", config.ConfigFileUsed()))

		db, err := openConfiguredStore(ctx, cfg)
		if err != nil {
			return errwrap.WrapInternal(ctx, err, "failed to open store")
		}

		limiter := ratelimit.New(ratelimit.DefaultRules(), ratelimit.WithSweepInterval(cfg.RateLimitSweep))
		limiter.ApplyOverrides(ratelimit.OverridesFromConfig(cfg.RateLimits))
		limiter.Start()

		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		hm.RegisterChecker("store", handlers.CheckerFunc(db.Ping))
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		handlers.SetAppIdentity(identity)

		srv := server.New(cfg.Server, server.Deps{
			Catalog:    catalog.NewService(db, catalogOptions(cfg.Catalog)),
			Contact:    contact.NewService(db, contact.LimitsFromConfig(cfg.Contact)),
			Store:      db,
			Images:     images.NewFetcher(images.OptionsFromConfig(cfg.Images)),
			Limiter:    limiter,
			AdminToken: cfg.Admin.Token,
			MediaDir:   cfg.Images.MediaDir,
			Import:     importer.Options{DefaultCategory: importer.DefaultCategory},
		})

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}

		// Shutdown handlers run LIFO: HTTP server, limiter, store, metrics, logger.
		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Flushing logger...")
			if err := observability.ServerLogger.Sync(); err != nil {
				// Sync errors are often benign (stdout/stderr already closed)
				observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
					zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			if err := observability.StopMetrics(); err != nil {
				observability.ServerLogger.Warn("Metrics exporter did not stop cleanly", zap.Error(err))
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Closing store...")
			if err := db.Close(); err != nil {
				return errwrap.WrapInternal(ctx, err, "store close failed")
			}
			return nil
		})

		signals.OnShutdown(func(ctx context.Context) error {
			return limiter.Close()
		})

		signals.OnShutdown(func(ctx context.Context) error {
			observability.ServerLogger.Info("Shutting down HTTP server...")
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errwrap.WrapInternal(ctx, err, "server shutdown failed")
			}

			observability.ServerLogger.Info("HTTP server stopped gracefully")
			return nil
		})

		signals.OnReload(func(ctx context.Context) error {
			observability.ServerLogger.Info("Received SIGHUP: attempting config reload")

			reloaded, err := config.Load(ctx, overrides)
			if err != nil {
				observability.ServerLogger.Error("Failed to reload config",
					zap.String("file", config.ConfigFileUsed()),
					zap.Error(err))
				return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
			}

			limiter.Reconfigure(ratelimit.OverridesFromConfig(reloaded.RateLimits))
			observability.ServerLogger.Info("Configuration reloaded",
				zap.String("file", config.ConfigFileUsed()),
				zap.Int("rate_limit_rules", len(limiter.Rules())))
			if reloaded.Server != cfg.Server || reloaded.Store != cfg.Store || reloaded.Admin != cfg.Admin {
				observability.ServerLogger.Warn("Server, store and admin settings changed; restart to apply them")
			}
			return nil
		})

		if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
			Window:  2 * time.Second,
			Message: "Press Ctrl+C again within 2 seconds to force quit",
		}); err != nil {
			observability.ServerLogger.Warn("Failed to enable double-tap force quit",
				zap.Error(err))
		}

		errChan := make(chan error, 1)
		go func() {
			observability.ServerLogger.Info("Starting HTTP server...",
				zap.String("host", cfg.Server.Host),
				zap.Int("port", cfg.Server.Port))
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		go func() {
			if err := signals.Listen(ctx); err != nil {
				observability.ServerLogger.Error("Signal handler error", zap.Error(err))
				errChan <- err
			}
		}()

		if err := <-errChan; err != nil {
			_ = limiter.Close()
			_ = db.Close()
			return errwrap.WrapInternal(ctx, err, "server error")
		}

		return nil
	},
}

// serveOverrides maps explicitly set flags onto config keys.
func serveOverrides(cmd *cobra.Command) map[string]any {
	overrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		overrides["server.host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		overrides["server.port"] = serverPort
	}
	if verbose {
		overrides["logging.level"] = "debug"
	}
	return overrides
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
