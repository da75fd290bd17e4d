package http_test

import (
	"bytes"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a"
	s4ahttp "github.com/meigma/s4a/http"
	"github.com/meigma/s4a/internal/testutil"
)

// rangeCounter serves dir and counts range requests.
type rangeCounter struct {
	handler nethttp.Handler
	ranges  atomic.Int32
}

func (c *rangeCounter) ServeHTTP(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.Header.Get("Range") != "" {
		c.ranges.Add(1)
	}
	c.handler.ServeHTTP(w, r)
}

func buildArchive(t *testing.T) (string, map[string][]byte) {
	t.Helper()
	src := t.TempDir()
	files := testutil.SampleTree()
	testutil.WriteTree(t, src, files)
	base := filepath.Join(t.TempDir(), "site")
	_, err := s4a.Create(context.Background(), src, base, s4a.CreateWithThreads(4))
	require.NoError(t, err)

	want := map[string][]byte{}
	for name, data := range files {
		if name[len(name)-1] != '/' {
			want[name] = data
		}
	}
	return base, want
}

func TestOpenWithSource_OverHTTP(t *testing.T) {
	t.Parallel()

	base, files := buildArchive(t)
	counter := &rangeCounter{handler: nethttp.FileServer(nethttp.Dir(filepath.Dir(base)))}
	server := httptest.NewServer(counter)
	t.Cleanup(server.Close)

	src, err := s4ahttp.NewSource(context.Background(), server.URL+"/site"+s4a.BlobSuffix)
	require.NoError(t, err)

	a, err := s4a.OpenWithSource(base+s4a.IndexSuffix, src)
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Verify())

	before := counter.ranges.Load()
	got, err := a.Extract("src/lib/util.go")
	require.NoError(t, err)
	assert.Equal(t, files["src/lib/util.go"], got)
	assert.Equal(t, int32(1), counter.ranges.Load()-before, "one extraction is one range request")

	dest := t.TempDir()
	stats, err := a.CopyDir(dest, ".")
	require.NoError(t, err)
	assert.Equal(t, len(files), stats.Processed)
	for name, want := range files {
		data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
		require.NoError(t, err, name)
		assert.Equal(t, want, data, name)
	}
}

func TestOpenMuxed_OverHTTP(t *testing.T) {
	t.Parallel()

	base, files := buildArchive(t)
	muxPath := filepath.Join(t.TempDir(), "site"+s4a.MuxSuffix)
	require.NoError(t, s4a.Mux(base+s4a.IndexSuffix, base+s4a.BlobSuffix, muxPath))
	data, err := os.ReadFile(muxPath)
	require.NoError(t, err)

	server := serveBytes(t, data, `"mux-v1"`)
	src, err := s4ahttp.NewSource(context.Background(), server.URL, s4ahttp.WithConditionalHeaders())
	require.NoError(t, err)

	a, err := s4a.OpenMuxed(src)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, len(files), a.Len())
	require.NoError(t, a.VerifyContents(context.Background()))
	got, err := a.Extract("coverage/index.html")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(files["coverage/index.html"], got))
}

func TestOpenWithSource_EmptyArchiveOverHTTP(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	single := filepath.Join(src, "only.txt")
	require.NoError(t, os.WriteFile(single, []byte("ignored"), 0o644))
	base := filepath.Join(t.TempDir(), "empty")
	res, err := s4a.Create(context.Background(), single, base)
	require.NoError(t, err)
	require.Zero(t, res.Entries)

	server := httptest.NewServer(nethttp.FileServer(nethttp.Dir(filepath.Dir(base))))
	t.Cleanup(server.Close)

	blob, err := s4ahttp.NewSource(context.Background(), server.URL+"/empty"+s4a.BlobSuffix)
	require.NoError(t, err)
	assert.Zero(t, blob.Size())

	a, err := s4a.OpenWithSource(base+s4a.IndexSuffix, blob)
	require.NoError(t, err)
	defer a.Close()
	assert.Zero(t, a.Len())
	require.NoError(t, a.VerifyContents(context.Background()))
}
