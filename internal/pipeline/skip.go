package pipeline

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// SkipCompressionFunc returns true when a file should be stored with the
// NONE codec. It is called once per file and should be inexpensive.
type SkipCompressionFunc func(path string, info fs.FileInfo) bool

// DefaultSkipCompression returns a SkipCompressionFunc that stores files
// smaller than minSize, and files whose extension marks them as already
// compressed, without compression.
func DefaultSkipCompression(minSize int64) SkipCompressionFunc {
	return func(path string, info fs.FileInfo) bool {
		if info != nil && minSize > 0 && info.Size() < minSize {
			return true
		}
		return IsCompressedExt(path)
	}
}

// IsCompressedExt reports whether path has an extension of a format that
// is already compressed.
func IsCompressedExt(path string) bool {
	_, ok := compressedExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// shouldSkip reports whether any predicate matches.
func shouldSkip(path string, info fs.FileInfo, predicates []SkipCompressionFunc) bool {
	for _, fn := range predicates {
		if fn != nil && fn(path, info) {
			return true
		}
	}
	return false
}

var compressedExts = func() map[string]struct{} {
	groups := [][]string{
		// archives and compressed streams
		{".7z", ".br", ".bz2", ".gz", ".lz4", ".rar", ".tgz", ".xz", ".zip", ".zst"},
		// images
		{".avif", ".gif", ".heic", ".ico", ".jpeg", ".jpg", ".png", ".webp"},
		// audio and video
		{".aac", ".flac", ".m4a", ".m4v", ".mkv", ".mov", ".mp3", ".mp4", ".ogg", ".opus", ".webm"},
		// documents and fonts
		{".pdf", ".woff", ".woff2"},
	}
	m := make(map[string]struct{}, 40)
	for _, g := range groups {
		for _, ext := range g {
			m[ext] = struct{}{}
		}
	}
	return m
}()
