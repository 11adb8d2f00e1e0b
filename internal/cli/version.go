package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is stamped by the release build; "dev" otherwise.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the kbsync version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println("kbsync " + Version)
	},
}
