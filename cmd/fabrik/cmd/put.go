package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tuist/fabrik"
)

var putHash string

var putCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store an artifact",
	Long:  "Store a file (or stdin) in the cache and print its content digest.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVar(&putHash, "hash", "", "store under an explicit digest instead of hashing the content")
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	var data []byte
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
		if err != nil {
			return err
		}
	} else {
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
	}

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	hash := putHash
	if hash == "" {
		hash = fabrik.Sum(data).String()
	}

	if err := cache.Put(hash, data); err != nil {
		return fmt.Errorf("put failed: %w", err)
	}

	fmt.Println(hash)
	return nil
}
