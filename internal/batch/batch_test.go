package batch

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/codec"
	"github.com/meigma/s4a/internal/extract"
	"github.com/meigma/s4a/internal/testutil"
)

type fixture struct {
	blob    []byte
	entries []*Entry
	files   map[string][]byte
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	comp := codec.NewCompressor(codec.DefaultLevel)
	defer comp.Close()

	f := &fixture{files: make(map[string][]byte, n)}
	var blob bytes.Buffer
	for i := range n {
		path := fmt.Sprintf("dir%d/file%03d.txt", i%3, i)
		content := bytes.Repeat([]byte(path), i+1)
		c := archivetype.CodecZstd
		if i%2 == 1 {
			c = archivetype.CodecNone
		}
		start := blob.Len()
		_, err := comp.Compress(c, &blob, bytes.NewReader(content))
		require.NoError(t, err)
		f.entries = append(f.entries, &Entry{
			Path:           path,
			Offset:         uint64(start),
			CompressedSize: uint64(blob.Len() - start),
			OriginalSize:   uint64(len(content)),
			Codec:          c,
			Checksum:       digest.FromBytes(content),
		})
		f.files[path] = content
	}
	f.blob = blob.Bytes()
	return f
}

func (f *fixture) assertExtracted(t *testing.T, dest string) {
	t.Helper()
	for path, want := range f.files {
		got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(path)))
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
}

func TestProcess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []ProcessorOption
	}{
		{"sequential", nil},
		{"pipelined", []ProcessorOption{WithReadConcurrency(4), WithMaxGroupBytes(256)}},
		{"read ahead budget", []ProcessorOption{WithReadAheadBytes(512), WithMaxGroupBytes(128)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 40)
			dest := t.TempDir()

			var events int
			opts := append(tt.opts, WithProcessorProgress(func(archivetype.ProgressEvent) { events++ }))
			proc := NewProcessor(extract.NewReader(testutil.NewMockByteSource(f.blob)), opts...)
			stats, err := proc.Process(context.Background(), f.entries, NewFileSink(dest))
			require.NoError(t, err)
			assert.Equal(t, 40, stats.Processed)
			assert.Equal(t, 40, events)
			f.assertExtracted(t, dest)
		})
	}
}

func TestProcess_TightReadAheadBudget(t *testing.T) {
	t.Parallel()

	// Groups far larger than the budget share it with many small ones;
	// extraction must still finish in order.
	f := newFixture(t, 60)
	dest := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	proc := NewProcessor(extract.NewReader(testutil.NewMockByteSource(f.blob)),
		WithReadConcurrency(8), WithMaxGroupBytes(16), WithReadAheadBytes(64))
	stats, err := proc.Process(ctx, f.entries, NewFileSink(dest))
	require.NoError(t, err)
	assert.Equal(t, 60, stats.Processed)
	f.assertExtracted(t, dest)
}

func TestProcess_SkipsExisting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4)
	dest := t.TempDir()
	existing := filepath.Join(dest, filepath.FromSlash(f.entries[0].Path))
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("keep me"), 0o644))

	proc := NewProcessor(extract.NewReader(testutil.NewMockByteSource(f.blob)))
	stats, err := proc.Process(context.Background(), f.entries, NewFileSink(dest))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 3, stats.Processed)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep me"), got)

	stats, err = proc.Process(context.Background(), f.entries, NewFileSink(dest, WithOverwrite(true)))
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Processed)
	f.assertExtracted(t, dest)
}

func TestProcess_CorruptEntry(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 4)
	// Entry 1 is stored uncompressed; damage its first byte.
	f.blob[f.entries[1].Offset] ^= 0xff
	dest := t.TempDir()

	proc := NewProcessor(extract.NewReader(testutil.NewMockByteSource(f.blob)))
	_, err := proc.Process(context.Background(), f.entries, NewFileSink(dest))
	require.ErrorIs(t, err, archivetype.ErrCorrupt)
	require.ErrorIs(t, err, archivetype.ErrChecksumMismatch)

	_, statErr := os.Stat(filepath.Join(dest, filepath.FromSlash(f.entries[1].Path)))
	require.ErrorIs(t, statErr, fs.ErrNotExist, "damaged entry is never committed")
}

func TestProcess_RejectsEscapingPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.entries[0].Path = "../escape.txt"
	dest := filepath.Join(t.TempDir(), "out")
	require.NoError(t, os.Mkdir(dest, 0o755))

	proc := NewProcessor(extract.NewReader(testutil.NewMockByteSource(f.blob)))
	_, err := proc.Process(context.Background(), f.entries, NewFileSink(dest))
	require.ErrorIs(t, err, fs.ErrInvalid)

	_, statErr := os.Stat(filepath.Join(filepath.Dir(dest), "escape.txt"))
	require.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestGroupAdjacentEntries(t *testing.T) {
	t.Parallel()

	entries := []*Entry{
		{Path: "a", Offset: 0, CompressedSize: 10},
		{Path: "b", Offset: 10, CompressedSize: 10},
		{Path: "c", Offset: 30, CompressedSize: 5},
		{Path: "d", Offset: 35, CompressedSize: 20},
	}

	groups := groupAdjacentEntries(entries, 0)
	require.Len(t, groups, 2)
	assert.Equal(t, uint64(0), groups[0].start)
	assert.Equal(t, uint64(20), groups[0].end)
	assert.Len(t, groups[1].entries, 2)

	capped := groupAdjacentEntries(entries, 15)
	assert.Len(t, capped, 4)
}
