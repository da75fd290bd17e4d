package codec

import (
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// DefaultMaxDecoderMemory is the default zstd decoder memory limit (256MB).
const DefaultMaxDecoderMemory = 256 << 20

// Decompressor opens decompressing readers for any codec.
// It pools zstd decoders and is safe for concurrent use.
type Decompressor struct {
	pool             sync.Pool
	maxDecoderMemory uint64
}

// NewDecompressor creates a Decompressor.
// If maxMemory is 0, no memory limit is applied to zstd decoders.
func NewDecompressor(maxMemory uint64) *Decompressor {
	return &Decompressor{maxDecoderMemory: maxMemory}
}

// Reader returns a reader producing the decompressed form of r.
// The caller must call release when done, even after read errors.
func (d *Decompressor) Reader(codec Codec, r io.Reader) (reader io.Reader, release func(), err error) {
	switch codec {
	case None:
		return r, func() {}, nil
	case Zstd:
		return d.zstdReader(r)
	case LZ4:
		return lz4.NewReader(r), func() {}, nil
	case LZMA:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrDecompression, err)
		}
		return xr, func() {}, nil
	default:
		return nil, nil, codec.Valid()
	}
}

func (d *Decompressor) zstdReader(r io.Reader) (io.Reader, func(), error) {
	if v := d.pool.Get(); v != nil {
		if dec, ok := v.(*zstd.Decoder); ok {
			if err := dec.Reset(r); err == nil {
				return dec, func() {
					_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
					d.pool.Put(dec)
				}, nil
			}
			dec.Close()
		}
	}
	dec, err := d.newDecoder(r)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrDecompression, err)
	}
	return dec, func() {
		_ = dec.Reset(nil) //nolint:errcheck // clearing state before pool return
		d.pool.Put(dec)
	}, nil
}

func (d *Decompressor) newDecoder(r io.Reader) (*zstd.Decoder, error) {
	opts := []zstd.DOption{zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(false)}
	if d.maxDecoderMemory != 0 {
		opts = append(opts, zstd.WithDecoderMaxMemory(d.maxDecoderMemory))
	}
	return zstd.NewReader(r, opts...)
}
