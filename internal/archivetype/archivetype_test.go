package archivetype

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Codec
	}{
		{"none", CodecNone},
		{"ZSTD", CodecZstd},
		{"lz4", CodecLZ4},
		{"LZMA", CodecLZMA},
		{"xz", CodecLZMA},
	}
	for _, tt := range tests {
		got, err := ParseCodec(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		if tt.in != "xz" {
			assert.Equal(t, got, mustParse(t, got.String()))
		}
	}

	_, err := ParseCodec("brotli")
	require.ErrorIs(t, err, ErrUnknownCodec)
	require.ErrorIs(t, Codec(99).Valid(), ErrUnknownCodec)
}

func mustParse(t *testing.T, s string) Codec {
	t.Helper()
	c, err := ParseCodec(s)
	require.NoError(t, err)
	return c
}

func TestEntryError_Is(t *testing.T) {
	t.Parallel()

	for _, cause := range []error{ErrChecksumMismatch, ErrDecompression, ErrOutOfRange, ErrSizeOverflow} {
		err := Corrupt("a.txt", fmt.Errorf("wrapped: %w", cause))
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.ErrorIs(t, err, cause)

		var entryErr *EntryError
		require.ErrorAs(t, err, &entryErr)
		assert.Equal(t, "a.txt", entryErr.Path)
	}

	transport := Corrupt("a.txt", errors.New("connection reset"))
	assert.NotErrorIs(t, transport, ErrCorrupt)
}

func TestEntry_End(t *testing.T) {
	t.Parallel()

	e := Entry{Offset: 10, CompressedSize: 5}
	end, ok := e.End()
	require.True(t, ok)
	assert.Equal(t, uint64(15), end)

	e = Entry{Offset: ^uint64(0), CompressedSize: 1}
	_, ok = e.End()
	assert.False(t, ok)
}

func TestProgressStage_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "enumerating", StageEnumerating.String())
	assert.Equal(t, "extracting", StageExtracting.String())
	assert.Equal(t, "unknown", ProgressStage(42).String())
}
