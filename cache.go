package fabrik

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/tuist/fabrik/internal/eviction"
	"github.com/tuist/fabrik/internal/meta"
	"github.com/tuist/fabrik/internal/store"
)

// Storage is the durable operation set behind a cache.
// Re-exported from internal/store for convenience.
type Storage = store.Storage

// Cache is an open cache instance bound to a root directory.
// It is safe for concurrent use; multiple processes may open the same
// root. Close releases the metadata database and stops background work.
type Cache struct {
	root    string
	store   *store.Local
	meta    *meta.DB
	evictor *eviction.Worker
	logger  *slog.Logger
	closed  atomic.Bool
}

// Stats summarizes cache contents.
type Stats struct {
	Objects int64
	Bytes   int64
	Dir     string
}

// Open creates or opens a cache rooted at dir. An empty dir selects
// DefaultCacheDir().
func Open(dir string, opts ...OpenOption) (*Cache, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if dir == "" {
		dir = DefaultCacheDir()
	}
	dir = expandPath(dir)

	local, err := store.NewLocal(options.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("open cache at %s: %w", dir, err)
	}

	c := &Cache{
		root:   dir,
		store:  local,
		logger: logger,
	}
	logger.Info("initialized cache", "backend", "filesystem", "dir", dir)

	// The metadata database needs the real filesystem; under a test
	// filesystem the cache runs blobs-only.
	_, osFs := options.Fs.(*afero.OsFs)
	if !options.NoMetadata && osFs {
		db, err := meta.Open(filepath.Join(dir, "metadata.db"), logger)
		if err != nil {
			return nil, err
		}
		c.meta = db
	}

	if options.Eviction != nil && options.Eviction.MaxSizeBytes > 0 {
		if c.meta == nil {
			c.Close()
			return nil, fmt.Errorf("open cache at %s: eviction requires metadata", dir)
		}
		c.evictor = eviction.NewWorker(evictStore{c}, *options.Eviction, options.Concurrency, logger)
		logger.Info("eviction enabled",
			"policy", string(options.Eviction.Policy),
			"max_size_bytes", options.Eviction.MaxSizeBytes)
	}

	return c, nil
}

// Put stores data under id, atomically replacing any previous artifact
// with the same identifier (last write wins). The identifier is taken on
// trust; it is not checked against a hash of data.
func (c *Cache) Put(id string, data []byte) error {
	d, err := c.digest(id)
	if err != nil {
		return err
	}
	if err := c.store.Put(d.String(), data); err != nil {
		return err
	}
	if c.meta != nil {
		if err := c.meta.Record(d.String(), int64(len(data)), time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the full artifact stored under id, or ErrNotFound.
func (c *Cache) Get(id string) ([]byte, error) {
	d, err := c.digest(id)
	if err != nil {
		return nil, err
	}
	data, err := c.store.Get(d.String())
	if err != nil {
		return nil, err
	}
	if c.meta != nil {
		c.meta.Touch(d.String(), time.Now().Unix())
	}
	return data, nil
}

// GetInto copies the artifact stored under id into buf and reports the
// number of bytes written. Returns ErrBufferTooSmall when the artifact
// exceeds len(buf); buf is never written past its length.
func (c *Cache) GetInto(id string, buf []byte) (int, error) {
	d, err := c.digest(id)
	if err != nil {
		return 0, err
	}
	n, err := c.store.GetInto(d.String(), buf)
	if err != nil {
		return n, err
	}
	if c.meta != nil {
		c.meta.Touch(d.String(), time.Now().Unix())
	}
	return n, nil
}

// Exists probes for the artifact without reading its payload.
func (c *Cache) Exists(id string) (bool, error) {
	d, err := c.digest(id)
	if err != nil {
		return false, err
	}
	return c.store.Exists(d.String())
}

// Size returns the stored payload size in bytes, or ErrNotFound.
func (c *Cache) Size(id string) (int64, error) {
	d, err := c.digest(id)
	if err != nil {
		return 0, err
	}
	return c.store.Size(d.String())
}

// Delete removes the artifact stored under id. Deleting an absent
// identifier succeeds.
func (c *Cache) Delete(id string) error {
	d, err := c.digest(id)
	if err != nil {
		return err
	}
	if err := c.store.Delete(d.String()); err != nil {
		return err
	}
	if c.meta != nil {
		return c.meta.Forget(d.String())
	}
	return nil
}

// Stats reports object count and total bytes, from metadata when
// available and by walking the objects directory otherwise.
func (c *Cache) Stats() (Stats, error) {
	if c.closed.Load() {
		return Stats{}, ErrClosed
	}
	s := Stats{Dir: c.root}
	if c.meta != nil {
		objects, bytes, err := c.meta.Stats()
		if err != nil {
			return Stats{}, err
		}
		s.Objects, s.Bytes = objects, bytes
		return s, nil
	}
	err := c.store.Walk(func(id string, size int64) error {
		s.Objects++
		s.Bytes += size
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("walk objects: %w", err)
	}
	return s, nil
}

// Evict triggers an immediate eviction check. No-op when eviction is
// not configured.
func (c *Cache) Evict() {
	if c.evictor != nil {
		c.evictor.Trigger()
	}
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string { return c.root }

// Close releases all resources owned by the cache. It is idempotent;
// any other operation after Close returns ErrClosed.
func (c *Cache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.evictor != nil {
		c.evictor.Close()
	}
	if c.meta != nil {
		return c.meta.Close()
	}
	return nil
}

// digest guards every operation: closed-handle check, then identifier
// validation before anything touches storage.
func (c *Cache) digest(id string) (Digest, error) {
	if c.closed.Load() {
		return "", ErrClosed
	}
	return ParseDigest(id)
}

// evictStore adapts Cache to the eviction worker's storage surface.
type evictStore struct{ c *Cache }

func (s evictStore) Objects() ([]meta.Object, error) {
	return s.c.meta.Objects()
}

func (s evictStore) Remove(id string) error {
	if err := s.c.store.Delete(id); err != nil {
		return err
	}
	return s.c.meta.Forget(id)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
