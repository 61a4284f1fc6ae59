package cmd

import (
	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:     "images",
	Aliases: []string{"image"},
	Short:   "Download item images and build thumbnails",
}

func init() {
	rootCmd.AddCommand(imagesCmd)
}
