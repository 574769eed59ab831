package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <hash> [output]",
	Short: "Retrieve an artifact",
	Long:  "Write the artifact stored under the given digest to a file, or to stdout.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	data, err := cache.Get(args[0])
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}

	if len(args) == 2 {
		return os.WriteFile(args[1], data, 0o644)
	}
	_, err = os.Stdout.Write(data)
	return err
}
