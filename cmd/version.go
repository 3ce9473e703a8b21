package cmd

import (
	"fmt"

	"github.com/galamiram/spotiwidget/internal/version"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the current version of spotiwidget.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("spotiwidget version: %s\n", version.Version)
		fmt.Printf("Spotify now-playing widget for the terminal\n")
		fmt.Printf("https://github.com/galamiram/spotiwidget\n")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
