package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tuist/fabrik"
	"github.com/tuist/fabrik/internal/eviction"
)

var rootCmd = &cobra.Command{
	Use:   "fabrik",
	Short: "Local content-addressed artifact cache",
	Long:  "CLI for storing, retrieving and managing artifacts in a local content-addressed cache.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/fabrik/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default: ~/.cache/fabrik)")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("FABRIK")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", fabrik.DefaultCacheDir())
	viper.SetDefault("eviction_policy", "lru")
	viper.SetDefault("default_ttl", "7d")

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fabrik")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "fabrik")
	}
	return ".fabrik"
}

// openCache opens the configured cache, wiring eviction when max_size
// is set.
func openCache() (*fabrik.Cache, error) {
	var opts []fabrik.OpenOption

	if maxSize := viper.GetString("max_size"); maxSize != "" {
		maxBytes, err := eviction.ParseSize(maxSize)
		if err != nil {
			return nil, fmt.Errorf("invalid max_size: %w", err)
		}
		policy, err := eviction.ParsePolicy(viper.GetString("eviction_policy"))
		if err != nil {
			return nil, err
		}
		ttl, err := eviction.ParseTTL(viper.GetString("default_ttl"))
		if err != nil {
			return nil, fmt.Errorf("invalid default_ttl: %w", err)
		}
		opts = append(opts, fabrik.WithEviction(eviction.Config{
			MaxSizeBytes: maxBytes,
			Policy:       policy,
			DefaultTTL:   ttl,
		}))
	}

	return fabrik.Open(viper.GetString("cache_dir"), opts...)
}
