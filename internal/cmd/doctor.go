package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		log := observability.CLILogger
		identity := GetAppIdentity()
		appName := "retrostock"
		if identity != nil && identity.BinaryName != "" {
			appName = identity.BinaryName
		}
		log.Info("=== " + appName + " doctor ===")
		log.Info("")
		log.Info("Running diagnostic checks...")
		log.Info("")

		allChecks := true
		totalChecks := 7

		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			log.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			log.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		version := crucible.GetVersion()
		if version.Crucible != "" && version.Gofulmen != "" {
			log.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible),
				zap.String("gofulmen_version", version.Gofulmen),
				zap.String("crucible_version", version.Crucible))
		} else {
			log.Error(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ❌ version metadata unavailable", totalChecks))
			allChecks = false
		}

		configPath := config.DefaultConfigPath()
		if configPath == "" {
			log.Warn(fmt.Sprintf("[3/%d] Checking config directory... ⚠️  cannot resolve config directory", totalChecks))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[3/%d] Checking config directory... ✅ %s (%s)", totalChecks, filepath.Dir(configPath), existenceStatus(fileExists(configPath))),
				zap.String("config_path", configPath))
		}

		cfg, cfgErr := config.Load(ctx)
		if cfgErr != nil {
			log.Error(fmt.Sprintf("[4/%d] Checking configuration... ❌ %v", totalChecks, cfgErr))
			log.Info("")
			log.Warn("⚠️  Remaining checks need a valid configuration.")
			return
		}
		log.Info(fmt.Sprintf("[4/%d] Checking configuration... ✅ valid", totalChecks), zap.String("config_file", config.ConfigFileUsed()))

		if ok := checkDatabase(cmd, cfg, 5, totalChecks); !ok {
			allChecks = false
		}

		mediaDir, err := ensureOutDir(cfg.Images.MediaDir)
		if err == nil {
			err = verifyDirWritable(mediaDir)
		}
		if err != nil {
			log.Warn(fmt.Sprintf("[6/%d] Checking media directory... ⚠️  %v", totalChecks, err), zap.String("media_dir", cfg.Images.MediaDir))
			allChecks = false
		} else {
			log.Info(fmt.Sprintf("[6/%d] Checking media directory... ✅ %s", totalChecks, mediaDir))
		}

		switch token := cfg.Admin.Token; {
		case token == "":
			log.Warn(fmt.Sprintf("[7/%d] Checking admin API... ⚠️  disabled (set admin.token or run '%s doctor init')", totalChecks, appName))
		case len(token) < 16:
			log.Warn(fmt.Sprintf("[7/%d] Checking admin API... ⚠️  admin.token is shorter than 16 characters", totalChecks))
			allChecks = false
		default:
			log.Info(fmt.Sprintf("[7/%d] Checking admin API... ✅ enabled", totalChecks))
		}

		log.Info("")
		if allChecks {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", appName))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("")
		log.Info("=== End Diagnostics ===")
	},
}

func checkDatabase(cmd *cobra.Command, cfg *config.Config, step, total int) bool {
	log := observability.CLILogger
	location := cfg.Store.URL
	if location == "" {
		absPath, _ := filepath.Abs(cfg.Store.Path)
		location = absPath
		if info, err := os.Stat(absPath); err == nil {
			location = fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
		}
	}

	db, err := openConfiguredStore(cmd.Context(), cfg)
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking database... ❌ %s: %v", step, total, location, err))
		return false
	}
	defer db.Close() //nolint:errcheck

	categories, err := db.ListCategories(cmd.Context())
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking database... ❌ %v", step, total, err))
		return false
	}
	consoles, err := db.ListConsoles(cmd.Context(), store.ConsoleFilter{})
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking database... ❌ %v", step, total, err))
		return false
	}
	_, items, err := db.ListItems(cmd.Context(), store.ItemQuery{Limit: 1})
	if err != nil {
		log.Error(fmt.Sprintf("[%d/%d] Checking database... ❌ %v", step, total, err))
		return false
	}

	log.Info(fmt.Sprintf("[%d/%d] Checking database... ✅ %s", step, total, location),
		zap.String("driver", db.Driver()),
		zap.Int("categories", len(categories)),
		zap.Int("consoles", len(consoles)),
		zap.Int("items", items))
	if items == 0 {
		log.Info("       The catalog is empty. Load it with 'seed FILE.yaml' or 'import FILE'.")
	}
	return true
}

var (
	doctorInitForce      bool
	doctorInitAdminToken string
	doctorResetConfig    bool
	doctorResetData      bool
	doctorResetAll       bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		token := strings.TrimSpace(doctorInitAdminToken)
		switch strings.ToLower(token) {
		case "prompt":
			value, err := promptForValue("Enter admin API token (leave blank to generate one): ")
			if err != nil {
				return err
			}
			token = value
			if token == "" {
				token = uuid.NewString()
			}
		case "generate":
			token = uuid.NewString()
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		mode := os.FileMode(0644)
		if token != "" {
			mode = 0600
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(token)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath), zap.Bool("admin_enabled", token != ""))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		configPath := config.DefaultConfigPath()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", configPath, existenceStatus(fileExists(configPath))))

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}

		if cfg.Store.URL != "" {
			log.Info(fmt.Sprintf("  Database:       %s (remote, %s)", cfg.Store.URL, cfg.Store.Driver))
		} else {
			absPath, _ := filepath.Abs(cfg.Store.Path)
			if info, statErr := os.Stat(absPath); statErr == nil {
				log.Info(fmt.Sprintf("  Database:       %s (%s)", absPath, formatFileSize(info.Size())))
			} else {
				log.Info(fmt.Sprintf("  Database:       %s (not created yet)", absPath))
			}
		}
		log.Info(fmt.Sprintf("  Media dir:      %s (%s)", cfg.Images.MediaDir, existenceStatus(fileExists(cfg.Images.MediaDir))))

		prefix := "RETROSTOCK_"
		if identity := GetAppIdentity(); identity != nil && identity.EnvPrefix != "" {
			prefix = identity.EnvPrefix
		}
		log.Info("")
		log.Info("Environment:")
		for _, name := range []string{"ADMIN_TOKEN", "STORE_URL", "STORE_AUTH_TOKEN"} {
			log.Info(fmt.Sprintf("  %s%s: %s", prefix, name, envStatus(prefix+name)))
		}

		log.Info("")
		log.Info("Effective Settings:")
		log.Info(fmt.Sprintf("  admin.enabled: %t", cfg.Admin.Token != ""))
		log.Info(fmt.Sprintf("  metrics.enabled: %t", cfg.Metrics.Enabled))
		log.Info("  catalog.classic_consoles: " + strings.Join(cfg.Catalog.ClassicConsoles, ", "))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := os.Remove(configPath); err == nil {
				observability.CLILogger.Info("Config removed", zap.String("path", configPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Config already removed", zap.String("path", configPath))
			} else {
				return fmt.Errorf("remove config file: %w", err)
			}
		}

		if doctorResetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; database reset is not supported")
			}

			absPath, _ := filepath.Abs(cfg.Store.Path)
			if err := os.Remove(absPath); err == nil {
				observability.CLILogger.Info("Database removed", zap.String("path", absPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Database already removed", zap.String("path", absPath))
			} else {
				return fmt.Errorf("remove database: %w", err)
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cmd.Context()); err != nil {
			return err
		}
		used := config.ConfigFileUsed()
		if used == "" {
			return fmt.Errorf("no config file found (defaults and environment only)")
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", used))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAdminToken, "admin-token", "", "admin API token, 'generate' for a random one, or 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(adminToken string) string {
	lines := []string{
		"# retrostock config - created by 'retrostock doctor init'",
		"server:",
		"  host: localhost",
		"  port: 8080",
		"store:",
		"  driver: libsql",
		"catalog:",
		"  classic_consoles: [NES, SNES, N64]",
		"images:",
		"  requests_per_second: 2",
		"  concurrency: 4",
	}

	if adminToken != "" {
		lines = append(lines, "admin:", fmt.Sprintf("  token: %q", adminToken))
	} else {
		lines = append(lines, "# admin:", "#   token: \"\"  # or set RETROSTOCK_ADMIN_TOKEN; empty disables /admin")
	}

	return strings.Join(lines, "\n") + "\n"
}

func promptForValue(prompt string) (string, error) {
	if _, err := fmt.Fprint(os.Stdout, prompt); err != nil {
		return "", err
	}
	reader := bufio.NewReader(os.Stdin)
	value, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}
