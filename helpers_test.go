package s4a

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a/internal/testutil"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedTime }

// createTestArchive writes files to a temp dir, archives it, and returns
// the archive base name.
func createTestArchive(t *testing.T, files map[string][]byte, opts ...CreateOption) string {
	t.Helper()

	src := t.TempDir()
	testutil.WriteTree(t, src, files)
	base := filepath.Join(t.TempDir(), "archive")

	opts = append([]CreateOption{CreateWithClock(fixedClock)}, opts...)
	_, err := Create(context.Background(), src, base, opts...)
	require.NoError(t, err)
	return base
}

// openTestArchive creates and opens an archive, closing it at test end.
func openTestArchive(t *testing.T, files map[string][]byte, opts ...CreateOption) (*Archive, string) {
	t.Helper()

	base := createTestArchive(t, files, opts...)
	a, err := Open(base)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, base
}

// sampleFiles returns the regular files of testutil.SampleTree.
func sampleFiles() map[string][]byte {
	files := make(map[string][]byte)
	for name, content := range testutil.SampleTree() {
		if name[len(name)-1] != '/' {
			files[name] = content
		}
	}
	return files
}

// dirNames returns the names in dir.
func dirNames(t *testing.T, dir string) []string {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
