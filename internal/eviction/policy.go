// Package eviction bounds cache size with LRU, LFU or TTL policies.
//
// A background worker periodically compares the recorded cache size
// against the configured maximum and removes artifacts, least valuable
// first, until the cache is back under the target ratio. Puts are never
// delayed by eviction.
package eviction

import (
	"fmt"
	"sort"
	"time"

	"github.com/tuist/fabrik/internal/meta"
)

// Policy selects which artifacts to evict first.
type Policy string

const (
	// LRU evicts the least recently accessed artifacts first.
	LRU Policy = "lru"
	// LFU evicts the least frequently accessed artifacts first, oldest
	// access as the tie-breaker.
	LFU Policy = "lfu"
	// TTL evicts only artifacts older than the configured TTL, oldest
	// first; unexpired artifacts are never evicted.
	TTL Policy = "ttl"
)

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case LRU, LFU, TTL:
		return Policy(s), nil
	}
	return "", fmt.Errorf("invalid eviction policy %q: must be lru, lfu, or ttl", s)
}

// rank filters and orders candidates, most evictable first.
func (p Policy) rank(objs []meta.Object, ttl time.Duration, now int64) []meta.Object {
	ranked := make([]meta.Object, 0, len(objs))
	if p == TTL {
		cutoff := now - int64(ttl.Seconds())
		for _, o := range objs {
			if o.CreatedAt < cutoff {
				ranked = append(ranked, o)
			}
		}
	} else {
		ranked = append(ranked, objs...)
	}

	switch p {
	case LFU:
		sort.Slice(ranked, func(i, j int) bool {
			if ranked[i].AccessCount != ranked[j].AccessCount {
				return ranked[i].AccessCount < ranked[j].AccessCount
			}
			return ranked[i].AccessedAt < ranked[j].AccessedAt
		})
	case TTL:
		sort.Slice(ranked, func(i, j int) bool {
			return ranked[i].CreatedAt < ranked[j].CreatedAt
		})
	default: // LRU
		sort.Slice(ranked, func(i, j int) bool {
			return ranked[i].AccessedAt < ranked[j].AccessedAt
		})
	}
	return ranked
}
