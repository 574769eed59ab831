package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"sync"
	"unsafe"
)

// lastError is a process-wide diagnostic slot. Callers on any thread may
// hit the boundary concurrently, so access is serialized; the returned
// string stays valid until the next API call replaces it.
var lastError struct {
	mu  sync.Mutex
	msg *C.char
}

func setLastError(msg string) {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	if lastError.msg != nil {
		C.free(unsafe.Pointer(lastError.msg))
	}
	lastError.msg = C.CString(msg)
}

func clearLastError() {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	if lastError.msg != nil {
		C.free(unsafe.Pointer(lastError.msg))
		lastError.msg = nil
	}
}

// fabrik_last_error returns the most recent diagnostic, or NULL when the
// last operation succeeded. The string is owned by the library; do not
// free it.
//
//export fabrik_last_error
func fabrik_last_error() *C.char {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()
	return lastError.msg
}
