package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
)

// Local implements Storage on a filesystem.
type Local struct {
	fs      afero.Fs
	dir     string // objects directory
	tmpSeq  atomic.Uint64
	tmpBase string // pid component of temp names
}

// NewLocal creates the objects directory under cacheDir and returns a
// filesystem-backed store.
func NewLocal(fs afero.Fs, cacheDir string) (*Local, error) {
	dir := filepath.Join(cacheDir, "objects")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &Local{
		fs:      fs,
		dir:     dir,
		tmpBase: fmt.Sprintf("%d", os.Getpid()),
	}, nil
}

// Path returns the location of an artifact: dir/ab/cdef... with the
// first two characters of the identifier as the shard directory.
func (l *Local) Path(id string) string {
	return filepath.Join(l.dir, id[:2], id[2:])
}

func (l *Local) Put(id string, data []byte) error {
	path := l.Path(id)

	// Shard directories are created lazily; a concurrent MkdirAll on the
	// same shard is not an error.
	if err := l.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create shard dir: %w", err)
	}

	// Temp name is unique per process and per write so concurrent puts
	// of the same identifier never collide before the rename.
	tmp := fmt.Sprintf("%s.tmp.%s.%d", path, l.tmpBase, l.tmpSeq.Add(1))

	f, err := l.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		l.fs.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		l.fs.Remove(tmp)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := l.fs.Rename(tmp, path); err != nil {
		l.fs.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (l *Local) Get(id string) ([]byte, error) {
	data, err := afero.ReadFile(l.fs, l.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

func (l *Local) GetInto(id string, buf []byte) (int, error) {
	f, err := l.fs.Open(l.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	size := info.Size()
	if size > int64(len(buf)) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, size, len(buf))
	}

	n, err := io.ReadFull(f, buf[:size])
	if err != nil {
		return n, fmt.Errorf("read artifact: %w", err)
	}
	return n, nil
}

func (l *Local) Exists(id string) (bool, error) {
	_, err := l.fs.Stat(l.Path(id))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat artifact: %w", err)
}

func (l *Local) Size(id string) (int64, error) {
	info, err := l.fs.Stat(l.Path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Size(), nil
}

func (l *Local) Delete(id string) error {
	if err := l.fs.Remove(l.Path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Walk visits every stored artifact, reporting its identifier and size.
// Used for stats when no metadata database is attached.
func (l *Local) Walk(fn func(id string, size int64) error) error {
	return afero.Walk(l.fs, l.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		// Orphaned temp files from a crashed writer are not artifacts.
		if strings.Contains(info.Name(), ".tmp.") {
			return nil
		}
		rel, err := filepath.Rel(l.dir, path)
		if err != nil {
			return err
		}
		shard, rest := filepath.Split(rel)
		return fn(filepath.Base(shard)+rest, info.Size())
	})
}

var _ Storage = (*Local)(nil)
