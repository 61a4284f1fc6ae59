package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/ratelimit"
	"github.com/retrostock/retrostock/internal/output"
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rate limit rules serve would enforce",
	Long: `List the built-in per-endpoint rules merged with the rate_limits
overrides from configuration. Live counters are only held by a running
server; see GET /admin/rate-limits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}
		outPath, outDir, err := resolveOutputTargets(cmd)
		if err != nil {
			return err
		}
		if outDir != "" {
			outDir, err = ensureOutDir(outDir)
			if err != nil {
				return err
			}
			outPath = filepath.Join(outDir, fmt.Sprintf("rate-limit.list.%s", outputExtension(format)))
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		rules := effectiveRules(cfg)

		sink, err := openSink(outPath)
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(rules, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		_, err = fmt.Fprint(sink.writer, ascii.DrawBox(renderRules(rules), 0))
		return err
	},
}

func effectiveRules(cfg *config.Config) map[string]ratelimit.Rule {
	limiter := ratelimit.New(ratelimit.DefaultRules())
	limiter.ApplyOverrides(ratelimit.OverridesFromConfig(cfg.RateLimits))
	return limiter.Rules()
}

func renderRules(rules map[string]ratelimit.Rule) string {
	lines := []string{"Rate Limits", ""}
	if len(rules) == 0 {
		return strings.Join(append(lines, "(no rate limited endpoints)"), "\n")
	}

	endpoints := make([]string, 0, len(rules))
	for endpoint := range rules {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)
	for _, endpoint := range endpoints {
		rule := rules[endpoint]
		lines = append(lines, fmt.Sprintf("%s: %d per %s", endpoint, rule.MaxRequests, rule.Window))
	}
	return strings.Join(lines, "\n")
}

func init() {
	rateLimitListCmd.Flags().StringP("output", "o", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().String("out-dir", "", "Write output to a directory")
}
