package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var existsCmd = &cobra.Command{
	Use:   "exists <hash>",
	Short: "Check whether an artifact is stored",
	Long:  "Print true/false and exit non-zero when the artifact is absent.",
	Args:  cobra.ExactArgs(1),
	RunE:  runExists,
}

func init() {
	rootCmd.AddCommand(existsCmd)
}

func runExists(cmd *cobra.Command, args []string) (err error) {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ok, err := cache.Exists(args[0])
	if err != nil {
		return fmt.Errorf("exists failed: %w", err)
	}

	fmt.Println(ok)
	if !ok {
		cache.Close()
		os.Exit(1)
	}
	return nil
}
