package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core/importer"
	"github.com/retrostock/retrostock/internal/observability"
	"github.com/retrostock/retrostock/internal/output"
)

var (
	importReplace        bool
	importDryRun         bool
	importCreateConsoles bool
	importFormat         string
	importCategory       string
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import inventory from a CSV or Excel file",
	Long: `Import inventory rows from a .csv, .xlsx or .xlsm file.

Append mode (the default) adds valid rows and reports invalid ones.
--replace swaps out every item of the consoles named in the file and aborts
without writing anything if any row is invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		format, err := importFileFormat(path, importFormat)
		if err != nil {
			return err
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer file.Close() // nolint:errcheck // read-only

		rows, err := importer.Parse(file, format)
		if err != nil {
			return err
		}

		_, db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		opts := importer.Options{
			Mode:            importer.ModeAppend,
			CreateConsoles:  importCreateConsoles,
			DefaultCategory: importCategory,
			DryRun:          importDryRun,
		}
		if importReplace {
			opts.Mode = importer.ModeReplace
		}

		summary, runErr := importer.Run(cmd.Context(), db, rows, opts)
		if runErr != nil && !errors.Is(runErr, importer.ErrAborted) {
			return runErr
		}

		name := "import." + sanitizeFilename(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
		if err := writeRendered(cmd, name, func(f output.Formatter) (string, error) {
			return f.FormatImportSummary(summary)
		}); err != nil {
			return err
		}

		if runErr != nil {
			observability.Warn("Import aborted", zap.Int("row_errors", len(summary.Errors)))
			return runErr
		}
		return nil
	},
}

func importFileFormat(path, explicit string) (importer.Format, error) {
	if strings.TrimSpace(explicit) != "" {
		return importer.ParseFormat(explicit)
	}
	return importer.FormatFromFilename(path)
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().BoolVar(&importReplace, "replace", false, "replace every item of the consoles named in the file")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate and report without writing")
	importCmd.Flags().BoolVar(&importCreateConsoles, "create-consoles", false, "create consoles that do not exist yet")
	importCmd.Flags().StringVar(&importFormat, "format", "", "file format: csv|xlsx (default from extension)")
	importCmd.Flags().StringVar(&importCategory, "category", importer.DefaultCategory, "category for created consoles")
	addOutputFlags(importCmd)
}
