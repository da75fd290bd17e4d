package s4a

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a/internal/testutil"
)

func TestArchive_FSConformance(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, testutil.SampleTree())

	err := fstest.TestFS(a,
		"README.md",
		"a.txt",
		"a/b.txt",
		"b/c.txt",
		"src/main.go",
		"src/lib/util.go",
		"coverage/index.html",
		"coverage/empty.txt",
	)
	require.NoError(t, err)
}

func TestArchive_ReadDir(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{
		"z.txt":      []byte("z"),
		"a.txt":      []byte("a"),
		"a/b.txt":    []byte("b"),
		"a/c/d.txt":  []byte("d"),
		"a.b/e.txt":  []byte("e"),
		"a-b/f.txt":  []byte("f"),
		"empty/dir/": nil,
	})

	names := func(entries []fs.DirEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.Name()
			if e.IsDir() {
				out[i] += "/"
			}
		}
		return out
	}

	root, err := a.ReadDir(".")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/", "a-b/", "a.b/", "a.txt", "z.txt"}, names(root))

	sub, err := a.ReadDir("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b.txt", "c/"}, names(sub))

	_, err = a.ReadDir("empty")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = a.ReadDir("a.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = a.ReadDir("/a")
	assert.ErrorIs(t, err, fs.ErrInvalid)

	info, err := root[3].Info()
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Size())
	assert.Equal(t, fixedTime, info.ModTime())
	e, ok := info.Sys().(*Entry)
	require.True(t, ok)
	assert.Equal(t, "a.txt", e.Path)
}

func TestArchive_ReadDirEmptyArchive(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{"only/": nil})

	entries, err := a.ReadDir(".")
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = a.Open("only")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestArchive_Stat(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{
		"dir/file.txt": []byte("content"),
	})

	info, err := a.Stat("dir/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "file.txt", info.Name())
	assert.Equal(t, int64(7), info.Size())
	assert.False(t, info.IsDir())
	assert.Equal(t, fs.FileMode(0o444), info.Mode())

	info, err = a.Stat("dir")
	require.NoError(t, err)
	assert.Equal(t, "dir", info.Name())
	assert.True(t, info.IsDir())

	info, err = a.Stat(".")
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = a.Stat("di")
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = a.Stat("dir/../dir/file.txt")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestArchive_OpenFile(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{
		"data.bin": []byte("0123456789"),
	})

	f, err := a.Open("data.bin")
	require.NoError(t, err)
	defer f.Close()

	file, ok := f.(File)
	require.True(t, ok, "opened files support ReadAt and Seek")

	buf := make([]byte, 3)
	n, err := file.ReadAt(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, "456", string(buf[:n]))

	_, err = file.Seek(8, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "89", string(rest))
}

func TestArchive_OpenDirReadDirN(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{
		"d/1.txt": []byte("1"),
		"d/2.txt": []byte("2"),
		"d/3.txt": []byte("3"),
	})

	f, err := a.Open("d")
	require.NoError(t, err)
	defer f.Close()
	dir, ok := f.(fs.ReadDirFile)
	require.True(t, ok)

	_, err = dir.Read(make([]byte, 1))
	assert.ErrorIs(t, err, fs.ErrInvalid)

	first, err := dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "1.txt", first[0].Name())

	second, err := dir.ReadDir(2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "3.txt", second[0].Name())

	_, err = dir.ReadDir(2)
	assert.ErrorIs(t, err, io.EOF)

	rest, err := dir.ReadDir(-1)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestArchive_ReadFile(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, map[string][]byte{"a.txt": []byte("original")})

	got, err := a.ReadFile("a.txt")
	require.NoError(t, err)
	got[0] = 'X'

	again, err := fs.ReadFile(a, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))

	_, err = a.ReadFile("missing")
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestArchive_OpenCorruptFile(t *testing.T) {
	t.Parallel()

	base := createTestArchive(t, map[string][]byte{
		"bad.txt":  []byte("will be damaged"),
		"good.txt": []byte("stays intact"),
	}, CreateWithCodec(CodecNone))

	blob, err := os.ReadFile(base + BlobSuffix)
	require.NoError(t, err)
	blob[0] ^= 0xff
	require.NoError(t, os.WriteFile(base+BlobSuffix, blob, 0o644))

	a, err := Open(base)
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Open("bad.txt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
	var pathErr *fs.PathError
	assert.True(t, errors.As(err, &pathErr))

	// Metadata does not depend on content.
	_, err = a.Stat("bad.txt")
	require.NoError(t, err)

	got, err := fs.ReadFile(a, "good.txt")
	require.NoError(t, err)
	assert.Equal(t, "stays intact", string(got))
}
