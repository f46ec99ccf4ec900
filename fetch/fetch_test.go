package fetch_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teaxyz/chai/fetch"
)

func TestTarballFetcherExtractsFiles(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte("name = \"serde\"\n")
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "crates/serde/Cargo.toml",
		Mode: 0o644,
		Size: int64(len(content)),
	}))
	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dataRoot := t.TempDir()
	f := fetch.TarballFetcher{}
	dir, err := f.Fetch(context.Background(), dataRoot, "crates", fetch.Spec{URL: server.URL, Kind: fetch.KindTarball})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "crates/serde/Cargo.toml"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestTarballFetcherRejectsPathEscape(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "../../etc/passwd",
		Mode: 0o644,
		Size: 0,
	}))
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dataRoot := t.TempDir()
	f := fetch.TarballFetcher{}
	_, err := f.Fetch(context.Background(), dataRoot, "crates", fetch.Spec{URL: server.URL, Kind: fetch.KindTarball})
	require.Error(t, err)
}

func TestGzipFetcherDecompressesSingleFile(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	content := []byte("Package: libfoo\nVersion: 1.0\n")
	_, err := gz.Write(content)
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dataRoot := t.TempDir()
	f := fetch.GzipFetcher{FileName: "Packages"}
	dir, err := f.Fetch(context.Background(), dataRoot, "debian", fetch.Spec{URL: server.URL + "/Packages.gz", Kind: fetch.KindGzip})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "Packages"))
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestGzipFetcherDefaultsFileNameFromURL(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	defer server.Close()

	dataRoot := t.TempDir()
	f := fetch.GzipFetcher{}
	dir, err := f.Fetch(context.Background(), dataRoot, "debian", fetch.Spec{URL: server.URL + "/Sources.gz", Kind: fetch.KindGzip})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "Sources"))
	require.NoError(t, err)
}

func TestOpenHTTPBodyPropagatesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	dataRoot := t.TempDir()
	f := fetch.GzipFetcher{}
	_, err := f.Fetch(context.Background(), dataRoot, "debian", fetch.Spec{URL: server.URL + "/missing.gz"})
	require.Error(t, err)
}

func TestPromoteLatestFlipsSymlinkAtomically(t *testing.T) {
	dataRoot := t.TempDir()
	pm := "crates"
	require.NoError(t, os.MkdirAll(filepath.Join(dataRoot, pm), 0o755))

	first := filepath.Join(dataRoot, pm, "20260101T000000Z")
	second := filepath.Join(dataRoot, pm, "20260102T000000Z")
	require.NoError(t, os.MkdirAll(first, 0o755))
	require.NoError(t, os.MkdirAll(second, 0o755))

	require.NoError(t, fetch.PromoteLatest(dataRoot, pm, first))
	target, err := os.Readlink(filepath.Join(dataRoot, pm, "latest"))
	require.NoError(t, err)
	require.Equal(t, first, target)

	require.NoError(t, fetch.PromoteLatest(dataRoot, pm, second))
	target, err = os.Readlink(filepath.Join(dataRoot, pm, "latest"))
	require.NoError(t, err)
	require.Equal(t, second, target)
}

func TestCleanupSnapshotRemovesDirectory(t *testing.T) {
	dataRoot := t.TempDir()
	dir := filepath.Join(dataRoot, "crates", "20260101T000000Z")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, fetch.CleanupSnapshot(dir))
	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err))
}

func TestCleanupSnapshotIgnoresEmptyPath(t *testing.T) {
	require.NoError(t, fetch.CleanupSnapshot(""))
}
