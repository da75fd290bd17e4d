package enumerate

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/testutil"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	in, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, KindDirectory, in.Kind())

	in, err = Resolve(file)
	require.NoError(t, err)
	assert.Equal(t, KindSingleFile, in.Kind())

	_, err = Resolve(filepath.Join(dir, "missing"))
	require.ErrorIs(t, err, archivetype.ErrInput)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnumerate_SingleFileIsEmpty(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("content"), 0o644))

	tree, err := Enumerate(context.Background(), SingleFile(file), 0)
	require.NoError(t, err)
	defer tree.Close()
	assert.Empty(t, tree.Tasks)
	assert.Nil(t, tree.Root)
	assert.Zero(t, tree.TotalBytes)
}

func TestEnumerate_Order(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string][]byte{
		"b/c.txt": []byte("xyz"),
		"a.txt":   []byte("hello"),
		"a/z.txt": []byte("1"),
		"a-b":     []byte("22"),
		"d/":      nil,
	})

	tree, err := Enumerate(context.Background(), Directory(dir), 0)
	require.NoError(t, err)
	defer tree.Close()

	paths := make([]string, 0, len(tree.Tasks))
	for i, task := range tree.Tasks {
		assert.Equal(t, i, task.Seq)
		paths = append(paths, task.Path)
	}
	// Byte order: '-' < '.' < '/'.
	assert.Equal(t, []string{"a-b", "a.txt", "a/z.txt", "b/c.txt"}, paths)
	assert.Equal(t, uint64(11), tree.TotalBytes)
	assert.Equal(t, int64(5), tree.Tasks[1].Size)
	assert.Equal(t, filepath.FromSlash("a/z.txt"), tree.Tasks[2].FSPath)
}

func TestEnumerate_Repeatable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, testutil.SampleTree())

	first, err := Enumerate(context.Background(), Directory(dir), 0)
	require.NoError(t, err)
	defer first.Close()
	second, err := Enumerate(context.Background(), Directory(dir), 0)
	require.NoError(t, err)
	defer second.Close()

	assert.Equal(t, first.Tasks, second.Tasks)
}

func TestEnumerate_RejectsSymlink(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require privileges on windows")
	}

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string][]byte{"target.txt": []byte("t")})
	require.NoError(t, os.Symlink("target.txt", filepath.Join(dir, "link.txt")))

	_, err := Enumerate(context.Background(), Directory(dir), 0)
	require.ErrorIs(t, err, archivetype.ErrUnsupportedFile)
}

func TestEnumerate_MaxFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string][]byte{
		"1": []byte("1"),
		"2": []byte("2"),
		"3": []byte("3"),
	})

	_, err := Enumerate(context.Background(), Directory(dir), 2)
	require.ErrorIs(t, err, archivetype.ErrTooManyFiles)

	for _, unlimited := range []int{0, -1} {
		tree, err := Enumerate(context.Background(), Directory(dir), unlimited)
		require.NoError(t, err)
		assert.Len(t, tree.Tasks, 3)
		require.NoError(t, tree.Close())
	}
}

func TestEnumerate_Canceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTree(t, dir, map[string][]byte{"a": []byte("a")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Enumerate(ctx, Directory(dir), 0)
	require.ErrorIs(t, err, context.Canceled)
}
