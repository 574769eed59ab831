package fabrik

import (
	"errors"

	"github.com/tuist/fabrik/internal/store"
)

var (
	// ErrNotFound reports that no artifact is stored under the identifier.
	ErrNotFound = store.ErrNotFound

	// ErrInvalidDigest reports a malformed content identifier.
	ErrInvalidDigest = errors.New("fabrik: invalid digest")

	// ErrBufferTooSmall reports that a caller-provided buffer cannot hold
	// the stored artifact.
	ErrBufferTooSmall = store.ErrBufferTooSmall

	// ErrClosed reports use of a cache after Close.
	ErrClosed = errors.New("fabrik: cache closed")
)
