package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/codec"
	"github.com/meigma/s4a/internal/enumerate"
	"github.com/meigma/s4a/internal/testutil"
)

// recordingIndex collects entries in the order they are put.
type recordingIndex struct {
	entries []archivetype.Entry
	failAt  int
}

func (r *recordingIndex) Put(e *archivetype.Entry) error {
	if r.failAt > 0 && len(r.entries)+1 == r.failAt {
		return errors.New("index full")
	}
	r.entries = append(r.entries, *e)
	return nil
}

func enumerateSample(t *testing.T, files map[string][]byte) *enumerate.Tree {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteTree(t, dir, files)
	tree, err := enumerate.Enumerate(context.Background(), enumerate.Directory(dir), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func run(t *testing.T, tree *enumerate.Tree, cfg Config) ([]byte, []archivetype.Entry, Stats) {
	t.Helper()
	var blob bytes.Buffer
	idx := &recordingIndex{}
	stats, err := Run(context.Background(), tree, &blob, idx, cfg)
	require.NoError(t, err)
	return blob.Bytes(), idx.entries, stats
}

func TestRun_RoundTrip(t *testing.T) {
	t.Parallel()

	files := testutil.SampleTree()
	tree := enumerateSample(t, files)

	for _, c := range []archivetype.Codec{archivetype.CodecNone, archivetype.CodecZstd, archivetype.CodecLZ4, archivetype.CodecLZMA} {
		t.Run(c.String(), func(t *testing.T) {
			t.Parallel()

			blob, entries, stats := run(t, tree, Config{Workers: 3, Codec: c, MaxInMemorySize: DefaultMaxInMemorySize})
			require.Len(t, entries, len(tree.Tasks))
			assert.Equal(t, len(entries), stats.Entries)
			assert.Equal(t, tree.TotalBytes, stats.OriginalBytes)
			assert.Equal(t, uint64(len(blob)), stats.BlobSize)

			dec := codec.NewDecompressor(0)
			var offset uint64
			for i, e := range entries {
				assert.Equal(t, tree.Tasks[i].Path, e.Path)
				assert.Equal(t, offset, e.Offset)
				offset += e.CompressedSize

				payload := blob[e.Offset : e.Offset+e.CompressedSize]
				r, release, err := dec.Reader(e.Codec, bytes.NewReader(payload))
				require.NoError(t, err)
				got, err := io.ReadAll(r)
				release()
				require.NoError(t, err)
				assert.Equal(t, files[e.Path], got, e.Path)
				assert.Equal(t, digest.FromBytes(files[e.Path]), e.Checksum)
			}
			assert.Equal(t, uint64(len(blob)), offset)
		})
	}
}

func TestRun_WorkerCountInvariance(t *testing.T) {
	t.Parallel()

	files := make(map[string][]byte, 64)
	for i := range 64 {
		files[fmt.Sprintf("dir%d/file%02d.txt", i%5, i)] = bytes.Repeat([]byte{byte('a' + i%26)}, 100*i+1)
	}
	tree := enumerateSample(t, files)

	wantBlob, wantEntries, _ := run(t, tree, Config{Workers: 1, Codec: archivetype.CodecZstd, MaxInMemorySize: DefaultMaxInMemorySize})
	for _, workers := range []int{2, 4, 16} {
		blob, entries, _ := run(t, tree, Config{Workers: workers, Codec: archivetype.CodecZstd, MaxInMemorySize: DefaultMaxInMemorySize})
		assert.Equal(t, wantBlob, blob, "workers=%d", workers)
		assert.Equal(t, wantEntries, entries, "workers=%d", workers)
	}
}

func TestRun_SpillMatchesMemory(t *testing.T) {
	t.Parallel()

	tree := enumerateSample(t, testutil.SampleTree())
	spillDir := t.TempDir()

	memBlob, memEntries, _ := run(t, tree, Config{Workers: 2, Codec: archivetype.CodecLZ4, MaxInMemorySize: -1})
	spillBlob, spillEntries, _ := run(t, tree, Config{Workers: 2, Codec: archivetype.CodecLZ4, MaxInMemorySize: 0, SpillDir: spillDir})

	assert.Equal(t, memBlob, spillBlob)
	assert.Equal(t, memEntries, spillEntries)

	left, err := os.ReadDir(spillDir)
	require.NoError(t, err)
	assert.Empty(t, left, "spill files must be removed once written")
}

func TestRun_SkipCompression(t *testing.T) {
	t.Parallel()

	tree := enumerateSample(t, map[string][]byte{
		"photo.JPG": bytes.Repeat([]byte("j"), 1000),
		"notes.txt": bytes.Repeat([]byte("n"), 1000),
		"tiny.txt":  []byte("t"),
	})
	_, entries, _ := run(t, tree, Config{
		Workers:         2,
		Codec:           archivetype.CodecZstd,
		Skip:            []SkipCompressionFunc{DefaultSkipCompression(16)},
		MaxInMemorySize: DefaultMaxInMemorySize,
	})

	codecs := make(map[string]archivetype.Codec, len(entries))
	for _, e := range entries {
		codecs[e.Path] = e.Codec
	}
	assert.Equal(t, archivetype.CodecZstd, codecs["notes.txt"])
	assert.Equal(t, archivetype.CodecNone, codecs["photo.JPG"])
	assert.Equal(t, archivetype.CodecNone, codecs["tiny.txt"])
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()

	t.Run("index failure aborts", func(t *testing.T) {
		t.Parallel()
		tree := enumerateSample(t, testutil.SampleTree())
		_, err := Run(context.Background(), tree, io.Discard, &recordingIndex{failAt: 3}, Config{Workers: 4, Codec: archivetype.CodecZstd})
		require.ErrorContains(t, err, "index full")
	})

	t.Run("file removed after enumeration", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WriteTree(t, dir, map[string][]byte{"a": []byte("a"), "b": []byte("b")})
		tree, err := enumerate.Enumerate(context.Background(), enumerate.Directory(dir), 0)
		require.NoError(t, err)
		defer tree.Close()
		require.NoError(t, os.Remove(filepath.Join(dir, "b")))

		_, err = Run(context.Background(), tree, io.Discard, &recordingIndex{}, Config{Workers: 2})
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file changed size", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		testutil.WriteTree(t, dir, map[string][]byte{"a": []byte("short")})
		tree, err := enumerate.Enumerate(context.Background(), enumerate.Directory(dir), 0)
		require.NoError(t, err)
		defer tree.Close()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("much longer now"), 0o644))

		_, err = Run(context.Background(), tree, io.Discard, &recordingIndex{}, Config{Workers: 1})
		require.ErrorIs(t, err, archivetype.ErrFileChanged)
	})

	t.Run("zero workers", func(t *testing.T) {
		t.Parallel()
		_, err := Run(context.Background(), &enumerate.Tree{}, io.Discard, &recordingIndex{}, Config{})
		require.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		tree := enumerateSample(t, testutil.SampleTree())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Run(ctx, tree, io.Discard, &recordingIndex{}, Config{Workers: 2})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestSequencer_Reorders(t *testing.T) {
	t.Parallel()

	const total = 5
	var blob bytes.Buffer
	idx := &recordingIndex{}
	s := &sequencer{
		blob:    bufio.NewWriterSize(&blob, MinWriteBufferSize),
		idx:     idx,
		window:  semaphore.NewWeighted(total),
		pending: make(map[int]Block),
	}
	require.NoError(t, s.window.Acquire(context.Background(), total))

	done := make(chan Block, total)
	for _, seq := range []int{3, 1, 4, 0, 2} {
		data := bytes.Repeat([]byte{byte('0' + seq)}, seq+1)
		done <- Block{
			Seq:            seq,
			Path:           fmt.Sprintf("f%d", seq),
			Data:           data,
			CompressedSize: uint64(len(data)),
			OriginalSize:   uint64(len(data)),
			Checksum:       digest.FromBytes(data),
		}
	}
	close(done)

	require.NoError(t, s.run(context.Background(), done, total))
	assert.Equal(t, "011222333344444", blob.String())
	require.Len(t, idx.entries, total)
	var offset uint64
	for i, e := range idx.entries {
		assert.Equal(t, fmt.Sprintf("f%d", i), e.Path)
		assert.Equal(t, offset, e.Offset)
		offset += e.CompressedSize
	}
	assert.Empty(t, s.pending)
}

func TestSequencer_MissingBlock(t *testing.T) {
	t.Parallel()

	s := &sequencer{
		blob:    bufio.NewWriter(io.Discard),
		idx:     &recordingIndex{},
		window:  semaphore.NewWeighted(4),
		pending: make(map[int]Block),
	}
	done := make(chan Block, 1)
	done <- Block{Seq: 1, Path: "late"}
	close(done)

	err := s.run(context.Background(), done, 2)
	require.ErrorIs(t, err, ErrPipeline)
}
