package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tuist/fabrik"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the fabrik version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(fabrik.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
