package store

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const testID = "abc123def456789abc123def456789abc123def456789abc123def456789abc1"

func newTestStore(t *testing.T) (*Local, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	l, err := NewLocal(fs, "cache")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l, fs
}

func TestPathSharding(t *testing.T) {
	l, _ := newTestStore(t)

	want := filepath.Join("cache", "objects", "ab", testID[2:])
	if got := l.Path(testID); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	l, _ := newTestStore(t)
	payload := []byte("payload bytes")

	if err := l.Put(testID, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := l.Get(testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
}

func TestPutLeavesNoTempFile(t *testing.T) {
	l, fs := newTestStore(t)

	if err := l.Put(testID, []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	shard := filepath.Join("cache", "objects", testID[:2])
	entries, err := afero.ReadDir(fs, shard)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("shard has %d entries, want 1", len(entries))
	}
	if name := entries[0].Name(); strings.Contains(name, ".tmp.") {
		t.Errorf("temp file left visible: %q", name)
	}
}

func TestPutOverwrites(t *testing.T) {
	l, _ := newTestStore(t)

	if err := l.Put(testID, []byte("old")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := l.Put(testID, []byte("new")); err != nil {
		t.Fatalf("re-Put: %v", err)
	}
	got, err := l.Get(testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("Get = %q, want %q", got, "new")
	}
}

func TestGetMissing(t *testing.T) {
	l, _ := newTestStore(t)

	if _, err := l.Get(testID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
	if _, err := l.Size(testID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Size = %v, want ErrNotFound", err)
	}
	if _, err := l.GetInto(testID, make([]byte, 8)); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetInto = %v, want ErrNotFound", err)
	}
}

func TestGetInto(t *testing.T) {
	l, _ := newTestStore(t)
	payload := []byte("0123456789")
	if err := l.Put(testID, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	buf := make([]byte, len(payload))
	n, err := l.GetInto(testID, buf)
	if err != nil {
		t.Fatalf("GetInto: %v", err)
	}
	if n != len(payload) || !bytes.Equal(buf, payload) {
		t.Errorf("GetInto = %q (%d), want %q", buf[:n], n, payload)
	}

	if _, err := l.GetInto(testID, make([]byte, len(payload)-1)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("GetInto with short buffer = %v, want ErrBufferTooSmall", err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	l, _ := newTestStore(t)

	if ok, err := l.Exists(testID); err != nil || ok {
		t.Fatalf("Exists = (%v, %v), want (false, nil)", ok, err)
	}
	if err := l.Put(testID, []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, err := l.Exists(testID); err != nil || !ok {
		t.Fatalf("Exists = (%v, %v), want (true, nil)", ok, err)
	}
	if err := l.Delete(testID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := l.Exists(testID); ok {
		t.Error("Exists = true after Delete")
	}
	// Absent delete is a no-op.
	if err := l.Delete(testID); err != nil {
		t.Errorf("Delete of absent = %v, want nil", err)
	}
}

func TestWalkSkipsOrphanedTempFiles(t *testing.T) {
	l, fs := newTestStore(t)

	if err := l.Put(testID, []byte("data")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Simulate a crashed writer's leftover.
	orphan := l.Path(testID) + ".tmp.999.1"
	if err := afero.WriteFile(fs, orphan, []byte("partial"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var ids []string
	err := l.Walk(func(id string, size int64) error {
		ids = append(ids, id)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(ids) != 1 || ids[0] != testID {
		t.Errorf("Walk visited %v, want [%s]", ids, testID)
	}
}

func TestPutCleansUpOnWriteFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	l, err := NewLocal(fs, "cache")
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	if err := l.Put(testID, []byte("ok")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	// A read-only filesystem fails the temp create; the final file must
	// remain intact.
	ro := afero.NewReadOnlyFs(fs)
	lro := &Local{fs: ro, dir: l.dir, tmpBase: l.tmpBase}
	if err := lro.Put(testID, []byte("new")); err == nil {
		t.Fatal("Put on read-only fs succeeded")
	}

	got, err := l.Get(testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("artifact corrupted by failed Put: %q", got)
	}
}

func TestOSFilesystem(t *testing.T) {
	l, err := NewLocal(afero.NewOsFs(), t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	payload := []byte("on-disk payload")
	if err := l.Put(testID, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := l.Get(testID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get = %q, want %q", got, payload)
	}
	if _, err := os.Stat(l.Path(testID)); err != nil {
		t.Errorf("artifact missing on disk: %v", err)
	}
}
