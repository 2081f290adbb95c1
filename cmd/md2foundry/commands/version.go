package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CePeU/MarkdownToFoundry-sub001/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Full())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
