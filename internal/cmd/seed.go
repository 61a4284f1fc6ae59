package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/retrostock/retrostock/internal/core/catalog"
)

var seedCmd = &cobra.Command{
	Use:   "seed FILE.yaml",
	Short: "Load categories, consoles and items from a YAML file",
	Long: `Load a catalog seed file. Categories and consoles are matched by slug
and items already present on their console are skipped, so the same file can
be applied repeatedly.

Example:

  categories:
    - name: Nintendo
      consoles:
        - name: NES
          manufacturer: Nintendo
          release_year: 1985
          items:
            - name: Metroid
              price: 30
              featured: true`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadSeedFile(args[0])
		if err != nil {
			return err
		}

		cfg, db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		svc := catalog.NewService(db, catalogOptions(cfg.Catalog))
		report, err := svc.Seed(cmd.Context(), data)
		if err != nil {
			return err
		}

		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return err
	},
}

func loadSeedFile(path string) (catalog.SeedFile, error) {
	var data catalog.SeedFile
	raw, err := os.ReadFile(path)
	if err != nil {
		return data, fmt.Errorf("read seed file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(data.Categories) == 0 {
		return data, fmt.Errorf("seed file %s has no categories", path)
	}
	return data, nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
