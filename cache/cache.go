package cache

import (
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// Cache provides content-addressed file storage.
//
// Implementations handle their own size limits and eviction and must be
// safe for concurrent use.
type Cache interface {
	// Get returns a file for reading cached content, or false on a miss.
	// Each call returns a new handle.
	Get(d digest.Digest) (fs.File, bool)

	// Put stores the content read from f under d. The cache reads f to
	// completion; the caller still owns and closes f.
	Put(d digest.Digest, f fs.File) error

	// Delete removes cached content. Missing entries are a no-op.
	Delete(d digest.Digest) error

	// MaxBytes returns the configured size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes entries until the cache holds at most targetBytes and
	// returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
