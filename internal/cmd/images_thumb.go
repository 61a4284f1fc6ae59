package cmd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/retrostock/retrostock/internal/config"
	"github.com/retrostock/retrostock/internal/core/images"
	"github.com/retrostock/retrostock/internal/observability"
)

var imagesThumbCmd = &cobra.Command{
	Use:   "thumb",
	Short: "Generate thumbnails for a directory of images",
	Long:  "Generate smaller png/jpeg copies of every image in a directory (default images.media_dir).",
	RunE:  runImagesThumb,
}

func init() {
	imagesCmd.AddCommand(imagesThumbCmd)
	registerThumbFlags(imagesThumbCmd)
}

func registerThumbFlags(cmd *cobra.Command) {
	cmd.Flags().String("in-dir", "", "Input directory containing images (default images.media_dir)")
	cmd.Flags().String("out-dir", "", "Output directory for thumbnails (defaults to in-dir)")
	cmd.Flags().Int("max-size", 256, "Max thumbnail dimension (64-1024)")
	cmd.Flags().String("format", "jpeg", "Thumbnail format: jpeg or png")
	cmd.Flags().Int("jpeg-quality", 80, "JPEG quality (1-100)")
	cmd.Flags().String("suffix", "thumbnail", "Filename suffix (e.g. 'thumbnail' -> name.thumbnail.jpg)")
}

func runImagesThumb(cmd *cobra.Command, _ []string) error {
	inDir, _ := cmd.Flags().GetString("in-dir")
	outDir, _ := cmd.Flags().GetString("out-dir")
	maxSize, _ := cmd.Flags().GetInt("max-size")
	format, _ := cmd.Flags().GetString("format")
	jpegQuality, _ := cmd.Flags().GetInt("jpeg-quality")
	suffix, _ := cmd.Flags().GetString("suffix")

	inDir = strings.TrimSpace(inDir)
	outDir = strings.TrimSpace(outDir)
	format = strings.ToLower(strings.TrimSpace(format))
	suffix = strings.TrimSpace(suffix)

	if inDir == "" {
		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return fmt.Errorf("--in-dir not set and config unavailable: %w", err)
		}
		inDir = cfg.Images.MediaDir
	}
	if inDir == "" {
		return errors.New("--in-dir is required")
	}
	if outDir == "" {
		outDir = inDir
	}
	if maxSize < 64 || maxSize > 1024 {
		return errors.New("--max-size must be between 64 and 1024")
	}
	if format != "jpeg" && format != "jpg" && format != "png" {
		return fmt.Errorf("unsupported format: %s", format)
	}
	if suffix == "" {
		suffix = "thumbnail"
	}

	absIn, err := filepath.Abs(inDir)
	if err != nil {
		absIn = inDir
	}
	absOut, err := ensureOutDir(outDir)
	if err != nil {
		return err
	}
	if err := verifyDirWritable(absOut); err != nil {
		return err
	}

	written, err := images.ThumbnailDir(absIn, absOut, maxSize, format, jpegQuality, suffix)
	if err != nil {
		return err
	}
	observability.Info("Thumbnails written",
		zap.Int("count", len(written)),
		zap.String("out_dir", absOut))
	return nil
}
