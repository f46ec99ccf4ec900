package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaxyz/chai/core"
)

type fakeGraphReader struct {
	packages []core.PackageRow
	edges    []core.DependencyEdge
	urls     []core.URLRow
	links    []core.PackageURLLink
}

func (f fakeGraphReader) LoadCurrentGraph(ctx context.Context, pmID string) ([]core.PackageRow, []core.DependencyEdge, error) {
	return f.packages, f.edges, nil
}

func (f fakeGraphReader) LoadCurrentURLs(ctx context.Context, pmID string) ([]core.URLRow, []core.PackageURLLink, error) {
	return f.urls, f.links, nil
}

func TestLoadBuildsLookupsFromGraph(t *testing.T) {
	reader := fakeGraphReader{
		packages: []core.PackageRow{
			{ID: "pkg-1", ImportID: "serde", Name: "serde"},
			{ID: "pkg-2", ImportID: "tokio", Name: "tokio"},
		},
		edges: []core.DependencyEdge{
			{PackageID: "pkg-1", DependencyID: "pkg-2", TypeName: "runtime"},
		},
		urls: []core.URLRow{
			{ID: "url-1", Value: "https://serde.rs", TypeName: "homepage"},
			{ID: "url-2", Value: "https://serde.rs/", TypeName: "repository"}, // non-canonical, must be dropped
		},
		links: []core.PackageURLLink{
			{PackageID: "pkg-1", URLID: "url-1"},
		},
	}

	c, err := Load(context.Background(), reader, "crates.io")
	require.NoError(t, err)

	pkg, ok := c.PackageByImportID("serde")
	require.True(t, ok)
	assert.Equal(t, "pkg-1", pkg.ID)

	_, ok = c.PackageByImportID("missing")
	assert.False(t, ok)

	url, ok := c.URL("https://serde.rs", "homepage")
	require.True(t, ok)
	assert.Equal(t, "url-1", url.ID)

	_, ok = c.URL("https://serde.rs/", "repository")
	assert.False(t, ok, "non-canonical urls must not be cached")

	assert.True(t, c.HasPackageURL("pkg-1", "url-1"))
	assert.False(t, c.HasPackageURL("pkg-1", "url-2"))

	typeName, _, ok := c.DependencyType("serde", "tokio")
	require.True(t, ok)
	assert.Equal(t, "runtime", typeName)

	ids := c.ImportIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "serde")
	assert.Contains(t, ids, "tokio")
}

func TestLoadDropsEdgesWithUnknownEndpoint(t *testing.T) {
	reader := fakeGraphReader{
		packages: []core.PackageRow{
			{ID: "pkg-1", ImportID: "serde", Name: "serde"},
		},
		edges: []core.DependencyEdge{
			{PackageID: "pkg-1", DependencyID: "pkg-ghost", TypeName: "runtime"},
		},
	}

	c, err := Load(context.Background(), reader, "crates.io")
	require.NoError(t, err)

	_, _, ok := c.DependencyType("serde", "ghost")
	assert.False(t, ok)
}

func TestNilCacheIsSafe(t *testing.T) {
	var c *Cache
	_, ok := c.PackageByImportID("x")
	assert.False(t, ok)
	assert.False(t, c.HasPackageURL("a", "b"))
	assert.Empty(t, c.ImportIDs())
}
