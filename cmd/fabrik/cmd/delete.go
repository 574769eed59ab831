package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <hash>",
	Aliases: []string{"rm"},
	Short:   "Remove an artifact",
	Long:    "Remove the artifact stored under the given digest. Removing an absent digest succeeds.",
	Args:    cobra.ExactArgs(1),
	RunE:    runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) (err error) {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := cache.Delete(args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	return nil
}
