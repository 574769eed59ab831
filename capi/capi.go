// C API for the fabrik cache, for integrating into other toolchains.
//
// Build as a shared library:
//
//	go build -buildmode=c-shared -o libfabrik.so ./capi
//
// Every fallible function returns a status code; on any non-zero code
// fabrik_last_error() holds a human-readable diagnostic. Cache handles
// come from fabrik_cache_init and must be released exactly once with
// fabrik_cache_free; using a freed handle is reported as an error, not
// undefined behavior, because handles are table indices rather than raw
// pointers.
package main

/*
#include <stdint.h>
#include <stdlib.h>

#define FABRIK_OK 0
#define FABRIK_ERROR -1
#define FABRIK_ERROR_NOT_FOUND -2
#define FABRIK_ERROR_INVALID_HASH -3
#define FABRIK_ERROR_IO -4
#define FABRIK_ERROR_BUFFER_TOO_SMALL -5
*/
import "C"

import (
	"errors"
	"io/fs"
	"runtime/cgo"
	"unsafe"

	"github.com/tuist/fabrik"
)

const (
	fabrikOK                  = 0
	fabrikError               = -1
	fabrikErrorNotFound       = -2
	fabrikErrorInvalidHash    = -3
	fabrikErrorIO             = -4
	fabrikErrorBufferTooSmall = -5
)

var versionC = C.CString(fabrik.Version)

// statusOf maps a Go error to a boundary status code.
func statusOf(err error) C.int {
	switch {
	case err == nil:
		return fabrikOK
	case errors.Is(err, fabrik.ErrNotFound):
		return fabrikErrorNotFound
	case errors.Is(err, fabrik.ErrInvalidDigest):
		return fabrikErrorInvalidHash
	case errors.Is(err, fabrik.ErrBufferTooSmall):
		return fabrikErrorBufferTooSmall
	default:
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			return fabrikErrorIO
		}
		return fabrikError
	}
}

// resolveCache looks a handle up in the process handle table. Returns
// nil for zero, stale, or freed handles.
func resolveCache(h C.uintptr_t) (c *fabrik.Cache) {
	if h == 0 {
		return nil
	}
	defer func() {
		if recover() != nil {
			c = nil
		}
	}()
	c, _ = cgo.Handle(h).Value().(*fabrik.Cache)
	return c
}

// fabrik_cache_init opens a cache rooted at cache_dir and returns an
// opaque handle, or 0 on error.
//
//export fabrik_cache_init
func fabrik_cache_init(cacheDir *C.char) C.uintptr_t {
	clearLastError()

	if cacheDir == nil {
		setLastError("cache_dir is NULL")
		return 0
	}

	cache, err := fabrik.Open(C.GoString(cacheDir))
	if err != nil {
		setLastError("failed to initialize cache: " + err.Error())
		return 0
	}
	return C.uintptr_t(cgo.NewHandle(cache))
}

// fabrik_cache_free releases a cache handle. Safe to call with 0; must
// not be called twice with the same handle.
//
//export fabrik_cache_free
func fabrik_cache_free(h C.uintptr_t) {
	cache := resolveCache(h)
	if cache == nil {
		return
	}
	cache.Close()
	cgo.Handle(h).Delete()
}

// fabrik_cache_put stores data_len bytes under hash.
//
//export fabrik_cache_put
func fabrik_cache_put(h C.uintptr_t, hash *C.char, data *C.uint8_t, dataLen C.size_t) C.int {
	clearLastError()

	cache := resolveCache(h)
	if cache == nil || hash == nil || (data == nil && dataLen > 0) {
		setLastError("NULL argument")
		return fabrikError
	}

	var payload []byte
	if dataLen > 0 {
		payload = unsafe.Slice((*byte)(unsafe.Pointer(data)), int(dataLen))
	}
	if err := cache.Put(C.GoString(hash), payload); err != nil {
		setLastError("failed to put artifact: " + err.Error())
		return statusOf(err)
	}
	return fabrikOK
}

// fabrik_cache_get copies the artifact stored under hash into
// output_buffer (capacity buffer_size) and sets *bytes_written. Returns
// FABRIK_ERROR_BUFFER_TOO_SMALL when the artifact does not fit; the
// buffer is never written past its capacity.
//
//export fabrik_cache_get
func fabrik_cache_get(h C.uintptr_t, hash *C.char, outputBuffer *C.uint8_t, bufferSize C.size_t, bytesWritten *C.size_t) C.int {
	clearLastError()

	cache := resolveCache(h)
	if cache == nil || hash == nil || outputBuffer == nil || bytesWritten == nil {
		setLastError("NULL argument")
		return fabrikError
	}

	buf := unsafe.Slice((*byte)(unsafe.Pointer(outputBuffer)), int(bufferSize))
	n, err := cache.GetInto(C.GoString(hash), buf)
	if err != nil {
		setLastError("failed to get artifact: " + err.Error())
		return statusOf(err)
	}
	*bytesWritten = C.size_t(n)
	return fabrikOK
}

// fabrik_cache_exists sets *exists to 1 if an artifact is stored under
// hash, 0 otherwise.
//
//export fabrik_cache_exists
func fabrik_cache_exists(h C.uintptr_t, hash *C.char, exists *C.int) C.int {
	clearLastError()

	cache := resolveCache(h)
	if cache == nil || hash == nil || exists == nil {
		setLastError("NULL argument")
		return fabrikError
	}

	ok, err := cache.Exists(C.GoString(hash))
	if err != nil {
		setLastError("failed to check existence: " + err.Error())
		return statusOf(err)
	}
	if ok {
		*exists = 1
	} else {
		*exists = 0
	}
	return fabrikOK
}

// fabrik_cache_delete removes the artifact stored under hash. Deleting
// an absent artifact succeeds.
//
//export fabrik_cache_delete
func fabrik_cache_delete(h C.uintptr_t, hash *C.char) C.int {
	clearLastError()

	cache := resolveCache(h)
	if cache == nil || hash == nil {
		setLastError("NULL argument")
		return fabrikError
	}

	if err := cache.Delete(C.GoString(hash)); err != nil {
		setLastError("failed to delete artifact: " + err.Error())
		return statusOf(err)
	}
	return fabrikOK
}

// fabrik_version returns the library version. The string is owned by
// the library; do not free it.
//
//export fabrik_version
func fabrik_version() *C.char {
	return versionC
}

func main() {}
