// Package fabrik provides a local content-addressed artifact cache.
//
// Artifacts are immutable byte sequences stored under a caller-supplied
// content identifier: the lowercase hex encoding of a SHA-256 digest.
// Writes are atomic (temp file, fsync, rename), so readers never observe
// a partially written artifact, and any number of goroutines or processes
// may share one cache directory.
//
// Basic usage:
//
//	cache, _ := fabrik.Open("/var/cache/fabrik")
//	defer cache.Close()
//
//	digest := fabrik.Sum(data)
//	cache.Put(digest.String(), data)
//
//	if ok, _ := cache.Exists(digest.String()); ok { ... }
//
//	data, _ = cache.Get(digest.String())
//	cache.Delete(digest.String())
//
// The cache trusts the caller's identifier; Put does not re-hash the
// payload. Use Sum to derive a correct identifier from content.
//
// Alongside the blob files the cache keeps per-object metadata (size,
// creation and access times, access count) in a SQLite database, which
// feeds optional size-bounded eviction:
//
//	cache, _ := fabrik.Open(dir, fabrik.WithEviction(fabrik.EvictionConfig{
//		MaxSizeBytes: 5 << 30,
//		Policy:       fabrik.EvictLRU,
//	}))
//
// A C-compatible boundary over the same operations lives in the capi
// directory and builds with -buildmode=c-shared.
package fabrik
