package s4a

import (
	"path/filepath"
	"strings"

	"github.com/meigma/s4a/internal/pathutil"
)

// File name suffixes of an archive.
const (
	IndexSuffix = ".s4a.db"
	BlobSuffix  = ".s4a.blob"
	MuxSuffix   = ".s4a"
)

// BaseName strips a trailing archive suffix (".s4a.db", ".s4a.blob", or
// ".s4a") from p. Other paths are returned unchanged.
func BaseName(p string) string {
	for _, suffix := range []string{IndexSuffix, BlobSuffix, MuxSuffix} {
		if trimmed, ok := strings.CutSuffix(p, suffix); ok && trimmed != "" {
			return trimmed
		}
	}
	return p
}

// Paths returns the index and blob paths for the archive base name.
func Paths(base string) (indexPath, blobPath string) {
	base = BaseName(base)
	return base + IndexSuffix, base + BlobSuffix
}

// isMuxPath reports whether p names a single-object archive.
func isMuxPath(p string) bool {
	return strings.HasSuffix(p, MuxSuffix) && filepath.Base(p) != MuxSuffix
}

// NormalizePath converts a user-provided path to fs.ValidPath format.
//
// It strips leading and trailing slashes, collapses repeated slashes, and
// maps "" and "/" to ".". Elements such as "." and ".." are preserved and
// rejected later by fs.ValidPath.
func NormalizePath(p string) string {
	return pathutil.Normalize(p)
}
