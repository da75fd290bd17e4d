package s4a

import (
	"log/slog"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/s4a/internal/pipeline"
)

// Defaults applied by Create.
const (
	// DefaultMaxInMemorySize is the file size above which compression spills
	// to a temporary file (8MB).
	DefaultMaxInMemorySize = pipeline.DefaultMaxInMemorySize

	// DefaultWriteBufferSize is the default blob write buffer (32MB).
	DefaultWriteBufferSize = pipeline.DefaultWriteBufferSize
)

// createConfig holds configuration for archive creation.
type createConfig struct {
	threads         int
	codec           Codec
	level           int
	algorithm       digest.Algorithm
	skipCompression []SkipCompressionFunc
	maxFiles        int
	maxInMemorySize int64
	writeBufferSize int
	logger          *slog.Logger
	progress        ProgressFunc
	clock           func() time.Time
}

func defaultCreateConfig() createConfig {
	return createConfig{
		threads:         1,
		codec:           CodecZstd,
		algorithm:       digest.SHA256,
		maxInMemorySize: DefaultMaxInMemorySize,
		writeBufferSize: DefaultWriteBufferSize,
		clock:           time.Now,
	}
}

// CreateOption configures archive creation.
type CreateOption func(*createConfig)

// CreateWithThreads sets the number of compression workers. Must be at
// least 1; defaults to 1. The archive bytes do not depend on this value.
func CreateWithThreads(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.threads = n
	}
}

// CreateWithCodec sets the codec applied to every file not matched by a
// skip-compression predicate. Defaults to CodecZstd.
func CreateWithCodec(c Codec) CreateOption {
	return func(cfg *createConfig) {
		cfg.codec = c
	}
}

// CreateWithLevel sets the codec compression level. Zero selects the codec
// default; the accepted range depends on the codec.
func CreateWithLevel(level int) CreateOption {
	return func(cfg *createConfig) {
		cfg.level = level
	}
}

// CreateWithChecksumAlgorithm sets the per-entry checksum algorithm.
// Defaults to SHA-256.
func CreateWithChecksumAlgorithm(alg digest.Algorithm) CreateOption {
	return func(cfg *createConfig) {
		cfg.algorithm = alg
	}
}

// CreateWithSkipCompression adds predicates that decide to store a file uncompressed.
// If any predicate returns true, the file is stored with CodecNone.
// These checks are on the hot path, so keep them cheap.
func CreateWithSkipCompression(fns ...SkipCompressionFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.skipCompression = append(cfg.skipCompression, fns...)
	}
}

// CreateWithMaxFiles fails Create with ErrTooManyFiles when the input holds
// more than n files. Zero or negative (the default) means no limit.
func CreateWithMaxFiles(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxFiles = n
	}
}

// CreateWithMaxInMemorySize sets the file size above which a worker
// compresses into a spill file instead of memory. Zero spills every file;
// negative never spills. Defaults to DefaultMaxInMemorySize.
func CreateWithMaxInMemorySize(n int64) CreateOption {
	return func(cfg *createConfig) {
		cfg.maxInMemorySize = n
	}
}

// CreateWithWriteBufferSize sets the blob write buffer size. Values below
// 128KB are raised to it. Defaults to DefaultWriteBufferSize.
func CreateWithWriteBufferSize(n int) CreateOption {
	return func(cfg *createConfig) {
		cfg.writeBufferSize = n
	}
}

// CreateWithLogger sets the logger for archive creation.
// If not set, logging is disabled.
func CreateWithLogger(logger *slog.Logger) CreateOption {
	return func(cfg *createConfig) {
		cfg.logger = logger
	}
}

// CreateWithProgress sets a callback to receive progress updates.
// The callback receives events for each stage and each written file.
func CreateWithProgress(fn ProgressFunc) CreateOption {
	return func(cfg *createConfig) {
		cfg.progress = fn
	}
}

// CreateWithClock sets the clock used for the archive creation time.
// Defaults to time.Now.
func CreateWithClock(now func() time.Time) CreateOption {
	return func(cfg *createConfig) {
		if now != nil {
			cfg.clock = now
		}
	}
}
