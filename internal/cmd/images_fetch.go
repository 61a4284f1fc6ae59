package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/observability"
)

var imagesFetchLimit int

var imagesFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download images for items that only have a remote image URL",
	Long: `Download every item image_url that has no local copy yet, store a JPEG
thumbnail under images.media_dir and record its path on the item. Requests
are paced by images.requests_per_second and run images.concurrency at a time.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		absMedia, err := ensureOutDir(cfg.Images.MediaDir)
		if err != nil {
			return err
		}
		if err := verifyDirWritable(absMedia); err != nil {
			return err
		}

		opts := images.OptionsFromConfig(cfg.Images)
		opts.MediaDir = absMedia
		report, err := images.NewFetcher(opts).Backfill(cmd.Context(), db, imagesFetchLimit)
		if err != nil {
			return err
		}
		for _, failure := range report.Failures {
			observability.Warn("Image fetch failed", zap.String("detail", failure))
		}

		payload, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
		return err
	},
}

func init() {
	imagesCmd.AddCommand(imagesFetchCmd)
	imagesFetchCmd.Flags().IntVar(&imagesFetchLimit, "limit", 0, "maximum items to process (0 = all)")
}
