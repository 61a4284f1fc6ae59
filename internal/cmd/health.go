package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/store"
	errwrap "github.com/retrostock/retrostock/internal/errors"
	"github.com/retrostock/retrostock/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify the build metadata, the configuration and the database connection.",
	Run: func(cmd *cobra.Command, args []string) {
		observability.CLILogger.Info("Running health check...")

		if versionInfo.Version == "" {
			observability.CLILogger.Error("❌ FAIL: Version information missing")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		ctx := cmd.Context()
		cfg, err := config.Load(ctx)
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapConfigInvalid(ctx, err, "config load failed"))
			return
		}
		observability.CLILogger.Info("✅ Configuration loaded", zap.String("file", config.ConfigFileUsed()))

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		db, err := store.Open(pingCtx, cfg.Store)
		if err == nil {
			err = db.Ping(pingCtx)
			_ = db.Close()
		}
		if err != nil {
			observability.CLILogger.Error("❌ FAIL: Database unreachable")
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Database unreachable", errwrap.WrapInternal(ctx, err, "store ping failed"))
			return
		}
		observability.CLILogger.Info("✅ Database reachable", zap.String("driver", cfg.Store.Driver))

		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
