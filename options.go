package fabrik

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/tuist/fabrik/internal/eviction"
)

// EvictionConfig configures size-bounded eviction.
// Re-exported from internal/eviction for convenience.
type EvictionConfig = eviction.Config

// EvictionPolicy selects which artifacts to evict first.
type EvictionPolicy = eviction.Policy

// Eviction policies.
const (
	EvictLRU = eviction.LRU
	EvictLFU = eviction.LFU
	EvictTTL = eviction.TTL
)

// OpenOptions configures a cache instance.
type OpenOptions struct {
	Fs          afero.Fs
	Logger      *slog.Logger
	Eviction    *eviction.Config
	Concurrency int
	NoMetadata  bool
}

// OpenOption is a functional option for configuring Open.
type OpenOption func(*OpenOptions)

func defaultOptions() *OpenOptions {
	return &OpenOptions{
		Fs:          afero.NewOsFs(),
		Concurrency: eviction.DefaultConcurrency,
	}
}

// WithFs sets the filesystem used for artifact storage. Intended for
// tests; metadata tracking is unavailable on non-OS filesystems, so
// WithFs implies WithoutMetadata unless the filesystem is the OS one.
func WithFs(fs afero.Fs) OpenOption {
	return func(o *OpenOptions) { o.Fs = fs }
}

// WithLogger sets the logger. If unset, slog.Default() is used.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(o *OpenOptions) { o.Logger = logger }
}

// WithEviction enables size-bounded eviction with the given configuration.
func WithEviction(cfg EvictionConfig) OpenOption {
	return func(o *OpenOptions) { o.Eviction = &cfg }
}

// WithConcurrency sets the number of parallel deletions per eviction run.
func WithConcurrency(n int) OpenOption {
	return func(o *OpenOptions) {
		if n > 0 {
			o.Concurrency = n
		}
	}
}

// WithoutMetadata disables the SQLite metadata database. Stats fall back
// to walking the objects directory and eviction is unavailable.
func WithoutMetadata() OpenOption {
	return func(o *OpenOptions) { o.NoMetadata = true }
}

// DefaultCacheDir returns the default cache directory following XDG
// conventions.
func DefaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "fabrik")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "fabrik")
	}
	return ".fabrik/cache"
}
