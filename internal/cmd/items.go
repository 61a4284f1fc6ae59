package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/retrostock/retrostock/internal/core"
	"github.com/retrostock/retrostock/internal/core/catalog"
	"github.com/retrostock/retrostock/internal/core/store"
	"github.com/retrostock/retrostock/internal/output"
)

var (
	itemsConsole  string
	itemsKind     string
	itemsSearch   string
	itemsSort     string
	itemsFeatured bool
	itemsInStock  bool
	itemsLimit    int
	itemsOffset   int
)

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Inspect inventory items",
}

var itemsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List items with optional filters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		query := store.ItemQuery{
			Search: strings.TrimSpace(itemsSearch),
			Sort:   itemsSort,
			Limit:  itemsLimit,
			Offset: itemsOffset,
		}
		if slug := strings.TrimSpace(itemsConsole); slug != "" {
			console, err := db.GetConsoleBySlug(ctx, core.Slugify(slug))
			if err != nil {
				return fmt.Errorf("console %q: %w", slug, err)
			}
			query.ConsoleID = console.ID
		}
		if strings.TrimSpace(itemsKind) != "" {
			kind, err := core.ParseItemKind(itemsKind)
			if err != nil {
				return err
			}
			query.Kind = kind
		}
		if itemsFeatured {
			query.Featured = &itemsFeatured
		}
		if itemsInStock {
			query.InStock = true
		}

		items, total, err := catalog.NewService(db, catalogOptions(cfg.Catalog)).ListItems(ctx, query)
		if err != nil {
			return err
		}

		return writeRendered(cmd, "items", func(f output.Formatter) (string, error) {
			return f.FormatItems(items, total)
		})
	},
}

func init() {
	itemsListCmd.Flags().StringVar(&itemsConsole, "console", "", "console slug or name")
	itemsListCmd.Flags().StringVar(&itemsKind, "kind", "", "game|console|controller|accessory")
	itemsListCmd.Flags().StringVarP(&itemsSearch, "query", "q", "", "match name or description")
	itemsListCmd.Flags().StringVar(&itemsSort, "sort", store.SortName, "name|price_asc|price_desc|newest")
	itemsListCmd.Flags().BoolVar(&itemsFeatured, "featured", false, "only featured items")
	itemsListCmd.Flags().BoolVar(&itemsInStock, "in-stock", false, "only items with quantity above zero")
	itemsListCmd.Flags().IntVar(&itemsLimit, "limit", 50, "maximum items to list")
	itemsListCmd.Flags().IntVar(&itemsOffset, "offset", 0, "items to skip")
	addOutputFlags(itemsListCmd)

	itemsCmd.AddCommand(itemsListCmd)
	rootCmd.AddCommand(itemsCmd)
}
