package fabrik

import (
	"bytes"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

// testDigest derives a distinct valid identifier per seed.
func testDigest(seed int) string {
	return Sum(fmt.Appendf(nil, "seed-%d", seed)).String()
}

func TestPutGetRoundTrip(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(1)
	payload := []byte("artifact payload")

	if err := cache.Put(id, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := cache.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
}

func TestExistsLifecycle(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(2)

	if ok, err := cache.Exists(id); err != nil || ok {
		t.Fatalf("Exists before put = (%v, %v), want (false, nil)", ok, err)
	}
	if err := cache.Put(id, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := cache.Exists(id); err != nil || !ok {
		t.Fatalf("Exists after put = (%v, %v), want (true, nil)", ok, err)
	}
	if err := cache.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, err := cache.Exists(id); err != nil || ok {
		t.Fatalf("Exists after delete = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestGetMissing(t *testing.T) {
	cache := openTestCache(t)

	if _, err := cache.Get(testDigest(3)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get of unstored digest = %v, want ErrNotFound", err)
	}
}

func TestGetInto(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(4)
	payload := []byte("0123456789")
	if err := cache.Put(id, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	buf := make([]byte, 64)
	n, err := cache.GetInto(id, buf)
	if err != nil {
		t.Fatalf("GetInto: %v", err)
	}
	if n != len(payload) || !bytes.Equal(buf[:n], payload) {
		t.Errorf("GetInto wrote %q (%d bytes), want %q", buf[:n], n, payload)
	}
}

func TestGetIntoBufferTooSmall(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(5)
	if err := cache.Put(id, []byte("0123456789")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	buf := []byte("canary")
	if _, err := cache.GetInto(id, buf[:4]); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("GetInto with small buffer = %v, want ErrBufferTooSmall", err)
	}
	// Bytes past the declared capacity are untouched.
	if string(buf[4:]) != "ry" {
		t.Errorf("buffer corrupted past capacity: %q", buf)
	}
}

func TestRePutLastWriteWins(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(6)

	if err := cache.Put(id, []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := cache.Put(id, []byte("second")); err != nil {
		t.Fatalf("re-Put: %v", err)
	}
	got, err := cache.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Get after re-put = %q, want %q", got, "second")
	}
}

func TestDeleteAbsentSucceeds(t *testing.T) {
	cache := openTestCache(t)

	if err := cache.Delete(testDigest(7)); err != nil {
		t.Errorf("Delete of absent digest = %v, want nil", err)
	}
}

func TestInvalidDigestRejectedBeforeStorage(t *testing.T) {
	fs := afero.NewMemMapFs()
	cache, err := Open("cache", WithFs(fs), WithoutMetadata())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	for _, id := range []string{"nonexistent", "", "zz"} {
		if err := cache.Put(id, []byte("x")); !errors.Is(err, ErrInvalidDigest) {
			t.Errorf("Put(%q) = %v, want ErrInvalidDigest", id, err)
		}
		if _, err := cache.Get(id); !errors.Is(err, ErrInvalidDigest) {
			t.Errorf("Get(%q) = %v, want ErrInvalidDigest", id, err)
		}
		if _, err := cache.Exists(id); !errors.Is(err, ErrInvalidDigest) {
			t.Errorf("Exists(%q) = %v, want ErrInvalidDigest", id, err)
		}
		if err := cache.Delete(id); !errors.Is(err, ErrInvalidDigest) {
			t.Errorf("Delete(%q) = %v, want ErrInvalidDigest", id, err)
		}
	}

	// Nothing was written under any shard.
	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Objects != 0 {
		t.Errorf("storage touched by invalid digests: %d objects", stats.Objects)
	}
}

func TestSize(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(8)
	if err := cache.Put(id, make([]byte, 1234)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	size, err := cache.Size(id)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 1234 {
		t.Errorf("Size = %d, want 1234", size)
	}
	if _, err := cache.Size(testDigest(9)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Size of unstored digest = %v, want ErrNotFound", err)
	}
}

func TestStats(t *testing.T) {
	cache := openTestCache(t)

	for i := 0; i < 3; i++ {
		if err := cache.Put(testDigest(10+i), make([]byte, 100)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stats, err := cache.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Objects != 3 || stats.Bytes != 300 {
		t.Errorf("Stats = %+v, want 3 objects / 300 bytes", stats)
	}
}

func TestClosedCache(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	id := testDigest(20)
	if err := cache.Put(id, []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Put after Close = %v, want ErrClosed", err)
	}
	if _, err := cache.Get(id); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v, want ErrClosed", err)
	}
	if _, err := cache.Stats(); !errors.Is(err, ErrClosed) {
		t.Errorf("Stats after Close = %v, want ErrClosed", err)
	}
}

// TestDemoFlow walks the canonical C consumer sequence end to end.
func TestDemoFlow(t *testing.T) {
	cache := openTestCache(t)

	hash := "abc123def456789abc123def456789abc123def456789abc123def456789abc1"
	payload := []byte("Hello from Fabrik C API!")

	if err := cache.Put(hash, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := cache.Exists(hash); !ok {
		t.Fatal("Exists = false after Put")
	}
	got, err := cache.Get(hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
	if err := cache.Delete(hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := cache.Exists(hash); ok {
		t.Fatal("Exists = true after Delete")
	}
	if _, err := cache.Get(hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestEvictionBoundsCacheSize(t *testing.T) {
	cache, err := Open(t.TempDir(), WithEviction(EvictionConfig{
		MaxSizeBytes:  1000,
		Policy:        EvictLRU,
		CheckInterval: time.Hour, // eviction runs only on Evict()
	}))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer cache.Close()

	for i := 0; i < 3; i++ {
		if err := cache.Put(testDigest(40+i), make([]byte, 400)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	cache.Evict()

	deadline := time.Now().Add(5 * time.Second)
	for {
		stats, err := cache.Stats()
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if stats.Bytes <= 900 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache not evicted below target: %+v", stats)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestConcurrentPutGet checks that readers racing a writer on one
// identifier only ever observe a complete value or a clean miss.
func TestConcurrentPutGet(t *testing.T) {
	cache := openTestCache(t)
	id := testDigest(30)

	valueA := bytes.Repeat([]byte("A"), 8192)
	valueB := bytes.Repeat([]byte("B"), 8192)

	var torn atomic.Int64
	p := pool.New().WithMaxGoroutines(8)
	for i := 0; i < 50; i++ {
		val := valueA
		if i%2 == 1 {
			val = valueB
		}
		p.Go(func() {
			if err := cache.Put(id, val); err != nil {
				t.Errorf("Put: %v", err)
			}
		})
		p.Go(func() {
			got, err := cache.Get(id)
			if errors.Is(err, ErrNotFound) {
				return
			}
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			if !bytes.Equal(got, valueA) && !bytes.Equal(got, valueB) {
				torn.Add(1)
			}
		})
	}
	p.Wait()

	if n := torn.Load(); n > 0 {
		t.Errorf("%d torn reads observed", n)
	}
}
