package cmd

import (
	"github.com/spf13/cobra"

	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/output"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Report items listed more than once on a console",
	Long: `Group inventory by normalized name and console. Classic consoles
(catalog.classic_consoles) also flag members whose text shows them as game
only or complete in box.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		groups, err := catalog.NewService(db, catalogOptions(cfg.Catalog)).DuplicateReport(cmd.Context())
		if err != nil {
			return err
		}

		return writeRendered(cmd, "duplicates", func(f output.Formatter) (string, error) {
			return f.FormatDuplicates(groups)
		})
	},
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
	addOutputFlags(duplicatesCmd)
}
