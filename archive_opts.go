package s4a

import (
	"log/slog"

	"github.com/meigma/s4a/cache"
)

// OpenOption configures an Archive.
type OpenOption func(*Archive)

// WithMaxFileSize limits the per-entry size (compressed and original).
// Entries above the limit fail extraction with ErrFileTooLarge, which is
// not a corruption error. Zero, the default, disables the limit.
func WithMaxFileSize(limit uint64) OpenOption {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithMaxDecoderMemory limits the memory used by the zstd and xz decoders.
// Set limit to 0 to disable the limit. Defaults to 256MB.
func WithMaxDecoderMemory(limit uint64) OpenOption {
	return func(a *Archive) {
		a.maxDecoderMemory = limit
	}
}

// WithCache enables content-addressed caching of extracted files.
//
// Content is cached by checksum after its first verified read and served
// from the cache afterwards. Concurrent misses for the same content are
// deduplicated.
func WithCache(c cache.Cache) OpenOption {
	return func(a *Archive) {
		a.cache = c
	}
}

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) OpenOption {
	return func(a *Archive) {
		a.logger = logger
	}
}
