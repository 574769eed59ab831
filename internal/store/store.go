// Package store implements the durable artifact storage layer.
//
// Artifacts live as plain files under git-style shard directories
// (objects/ab/cdef...). Puts are atomic: the payload is written to a
// temp file on the same volume, fsynced, then renamed into place, so a
// concurrent reader sees either the complete old bytes or the complete
// new bytes and a crashed writer never leaves a truncated file visible
// under the final name.
package store

import "errors"

var (
	// ErrNotFound reports that no artifact exists under the identifier.
	ErrNotFound = errors.New("fabrik: artifact not found")

	// ErrBufferTooSmall reports that the destination buffer cannot hold
	// the stored artifact.
	ErrBufferTooSmall = errors.New("fabrik: buffer too small")
)

// Storage is the durable operation set backing a cache instance.
type Storage interface {
	// Put stores data under id, atomically replacing any previous bytes.
	Put(id string, data []byte) error

	// Get returns the full stored bytes, or ErrNotFound.
	Get(id string) ([]byte, error)

	// GetInto copies the stored bytes into buf and reports how many bytes
	// were written. Returns ErrBufferTooSmall if the artifact does not fit
	// and ErrNotFound if it is absent; buf is not written past its length.
	GetInto(id string, buf []byte) (int, error)

	// Exists probes for the artifact without reading its payload.
	Exists(id string) (bool, error)

	// Size returns the stored payload size, or ErrNotFound.
	Size(id string) (int64, error)

	// Delete removes the artifact. Deleting an absent id is a no-op.
	Delete(id string) error
}
