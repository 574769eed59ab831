package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) (err error) {
	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	stats, err := cache.Stats()
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	fmt.Printf("dir:     %s\n", stats.Dir)
	fmt.Printf("objects: %d\n", stats.Objects)
	fmt.Printf("bytes:   %d\n", stats.Bytes)
	return nil
}
