package archivetype

import (
	"fmt"
	"strings"
)

// Codec identifies the compression algorithm used for an entry.
//
// The string form is what the index stores in its compression column.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
	CodecLZ4
	CodecLZMA
)

// String returns the persisted name of the codec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "NONE"
	case CodecZstd:
		return "ZSTD"
	case CodecLZ4:
		return "LZ4"
	case CodecLZMA:
		return "LZMA"
	default:
		return "UNKNOWN"
	}
}

// Valid returns nil if c is a known codec.
func (c Codec) Valid() error {
	switch c {
	case CodecNone, CodecZstd, CodecLZ4, CodecLZMA:
		return nil
	}
	return fmt.Errorf("%w: %d", ErrUnknownCodec, uint8(c))
}

// ParseCodec parses a codec name. Matching is case-insensitive.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "NONE":
		return CodecNone, nil
	case "ZSTD":
		return CodecZstd, nil
	case "LZ4":
		return CodecLZ4, nil
	case "LZMA", "XZ":
		return CodecLZMA, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}
