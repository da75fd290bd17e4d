// Package codec implements the per-entry compression algorithms.
//
// Every codec is deterministic for a fixed input and configuration, which is
// what makes archive output reproducible across runs and thread counts.
package codec

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"

	"github.com/meigma/s4a/internal/archivetype"
)

// Codec is an alias for archivetype.Codec.
type Codec = archivetype.Codec

// Re-export codec constants.
const (
	None = archivetype.CodecNone
	Zstd = archivetype.CodecZstd
	LZ4  = archivetype.CodecLZ4
	LZMA = archivetype.CodecLZMA
)

// DefaultLevel selects each codec's default compression level.
const DefaultLevel = 0

var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// Compressor compresses whole streams.
//
// A Compressor keeps encoder state between calls and is not safe for
// concurrent use; each worker owns one.
type Compressor struct {
	level int
	zenc  *zstd.Encoder
	buf   []byte
}

// NewCompressor returns a Compressor using level for codecs that support it.
// Level 0 selects the codec default. ZSTD accepts 1-22, LZ4 accepts 1-9;
// LZMA and NONE ignore the level.
func NewCompressor(level int) *Compressor {
	return &Compressor{level: level, buf: make([]byte, 32*1024)}
}

// Compress reads src to EOF and writes its compressed form to dst.
// It returns the number of bytes consumed from src.
func (c *Compressor) Compress(codec Codec, dst io.Writer, src io.Reader) (int64, error) {
	switch codec {
	case None:
		return io.CopyBuffer(dst, src, c.buf)
	case Zstd:
		return c.compressZstd(dst, src)
	case LZ4:
		return c.compressLZ4(dst, src)
	case LZMA:
		return c.compressLZMA(dst, src)
	default:
		return 0, codec.Valid()
	}
}

// Close releases encoder resources.
func (c *Compressor) Close() error {
	if c.zenc == nil {
		return nil
	}
	return c.zenc.Close()
}

func (c *Compressor) compressZstd(dst io.Writer, src io.Reader) (int64, error) {
	if c.zenc == nil {
		opts := []zstd.EOption{zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true)}
		if c.level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)))
		}
		enc, err := zstd.NewWriter(io.Discard, opts...)
		if err != nil {
			return 0, fmt.Errorf("create zstd encoder: %w", err)
		}
		c.zenc = enc
	}
	c.zenc.Reset(dst)
	n, err := io.CopyBuffer(c.zenc, src, c.buf)
	if err != nil {
		_ = c.zenc.Close() //nolint:errcheck // reporting the copy error
		return n, err
	}
	if err := c.zenc.Close(); err != nil {
		return n, fmt.Errorf("close zstd encoder: %w", err)
	}
	return n, nil
}

func (c *Compressor) compressLZ4(dst io.Writer, src io.Reader) (int64, error) {
	zw := lz4.NewWriter(dst)
	opts := []lz4.Option{lz4.ConcurrencyOption(1)}
	if c.level > 0 && c.level <= len(lz4Levels) {
		opts = append(opts, lz4.CompressionLevelOption(lz4Levels[c.level-1]))
	}
	if err := zw.Apply(opts...); err != nil {
		return 0, fmt.Errorf("configure lz4 writer: %w", err)
	}
	n, err := io.CopyBuffer(zw, src, c.buf)
	if err != nil {
		_ = zw.Close() //nolint:errcheck // reporting the copy error
		return n, err
	}
	if err := zw.Close(); err != nil {
		return n, fmt.Errorf("close lz4 writer: %w", err)
	}
	return n, nil
}

func (c *Compressor) compressLZMA(dst io.Writer, src io.Reader) (int64, error) {
	xw, err := xz.NewWriter(dst)
	if err != nil {
		return 0, fmt.Errorf("create xz writer: %w", err)
	}
	n, err := io.CopyBuffer(xw, src, c.buf)
	if err != nil {
		_ = xw.Close() //nolint:errcheck // reporting the copy error
		return n, err
	}
	if err := xw.Close(); err != nil {
		return n, fmt.Errorf("close xz writer: %w", err)
	}
	return n, nil
}
