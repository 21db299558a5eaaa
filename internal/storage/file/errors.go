// Package file implements paged, fixed-size file I/O and an LRU buffer
// pool sitting in front of it. Every other storage layer reads and writes
// pages exclusively through this package; nobody else owns raw page bytes.
package file

import (
	"errors"
	"fmt"
)

// PageSize is the fixed size, in bytes, of every page handled by this
// package. It is a process-wide constant: every on-disk page, every
// buffer-pool slot, and every serialized container built by higher layers
// is exactly this size.
const PageSize = 8192

// DefaultBufferPoolCapacity is the default number of page-sized slots the
// buffer manager keeps resident (≈80 MiB at the default PageSize).
const DefaultBufferPoolCapacity = 10000

// DefaultMaxOpenFiles bounds how many distinct files a PagedFileManager
// keeps open concurrently.
const DefaultMaxOpenFiles = 128

var (
	// ErrFileNotFound is returned when opening a path that does not exist.
	ErrFileNotFound = errors.New("file: not found")
	// ErrFileAlreadyExists is returned when creating a path that already exists.
	ErrFileAlreadyExists = errors.New("file: already exists")
	// ErrTooManyOpenFiles is returned when the open-file cap is reached.
	ErrTooManyOpenFiles = errors.New("file: too many open files")
	// ErrInvalidPageSize is returned when a caller supplies a buffer whose
	// length is not exactly PageSize.
	ErrInvalidPageSize = errors.New("file: invalid page size")
	// ErrPageNotFound is returned by buffer operations that require a
	// resident page (e.g. MarkDirty) when the key is not cached.
	ErrPageNotFound = errors.New("file: page not found in buffer pool")
)

// InvalidHandleError reports use of a FileHandle unknown to the manager.
type InvalidHandleError struct {
	Handle FileHandle
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("file: invalid handle %d", e.Handle)
}

// errInvalidHandle constructs an *InvalidHandleError for h.
func errInvalidHandle(h FileHandle) error {
	return &InvalidHandleError{Handle: h}
}
