// Package cache implements the in-memory snapshot the Diff engine compares
// a parsed upstream snapshot against (§4.3). A Cache is built once per
// pipeline run and is read-only for the remainder of that run — mutations
// only ever live in the Diff's delta.
package cache

import (
	"context"
	"strings"

	"github.com/teaxyz/chai/core"
	"golang.org/x/sync/errgroup"
)

// URLKey identifies a URL by its canonical value and type name, matching
// the Diff engine's lookup key (§4.3).
type URLKey struct {
	Value    string
	TypeName string
}

// Cache is the read-only baseline Diff compares a snapshot against.
type Cache struct {
	// PackageManagerID is the partition this cache was built for.
	PackageManagerID string

	packageByImportID map[string]core.PackageRow
	urlByKey          map[URLKey]core.URLRow
	urlByID           map[string]core.URLRow
	packageURLs       map[string]map[string]struct{}      // package id -> url ids
	dependencies      map[string]map[string]dependencyRow // package import id -> dependency import id -> row
}

type dependencyRow struct {
	TypeName    string
	SemverRange *string
}

// New builds an empty Cache for a package manager partition; used by tests
// and by Load before population.
func New(packageManagerID string) *Cache {
	return &Cache{
		PackageManagerID:  packageManagerID,
		packageByImportID: map[string]core.PackageRow{},
		urlByKey:          map[URLKey]core.URLRow{},
		urlByID:           map[string]core.URLRow{},
		packageURLs:       map[string]map[string]struct{}{},
		dependencies:      map[string]map[string]dependencyRow{},
	}
}

// Load builds a Cache from a GraphReader, running the graph load and the URL
// load concurrently (§4.5: "Cache load may proceed in parallel with
// Fetch/Parse").
func Load(ctx context.Context, reader core.GraphReader, packageManagerID string) (*Cache, error) {
	c := New(packageManagerID)

	group, groupCtx := errgroup.WithContext(ctx)
	var (
		packages []core.PackageRow
		edges    []core.DependencyEdge
		urls     []core.URLRow
		links    []core.PackageURLLink
	)

	group.Go(func() error {
		var err error
		packages, edges, err = reader.LoadCurrentGraph(groupCtx, packageManagerID)
		return err
	})
	group.Go(func() error {
		var err error
		urls, links, err = reader.LoadCurrentURLs(groupCtx, packageManagerID)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	importIDByPackageID := make(map[string]string, len(packages))
	for _, pkg := range packages {
		c.packageByImportID[pkg.ImportID] = pkg
		importIDByPackageID[pkg.ID] = pkg.ImportID
	}

	for _, u := range urls {
		// Invariant (§4.3): url_map keys are canonical. Non-canonical URLs
		// already in the store are deliberately omitted here so the Diff
		// engine never treats them as already satisfied.
		if !isCanonicalRow(u) {
			continue
		}
		c.urlByKey[URLKey{Value: u.Value, TypeName: u.TypeName}] = u
		c.urlByID[u.ID] = u
	}

	for _, link := range links {
		set, ok := c.packageURLs[link.PackageID]
		if !ok {
			set = map[string]struct{}{}
			c.packageURLs[link.PackageID] = set
		}
		set[link.URLID] = struct{}{}
	}

	for _, edge := range edges {
		srcImportID, ok := importIDByPackageID[edge.PackageID]
		if !ok {
			continue
		}
		dstImportID, ok := importIDByPackageID[edge.DependencyID]
		if !ok {
			// Invariant (§4.3): both endpoints of a cached dependency must
			// exist in package_map; an edge whose destination fell out of
			// the partition (e.g. a stale row) is dropped rather than
			// carried forward with a dangling reference.
			continue
		}
		byDep, ok := c.dependencies[srcImportID]
		if !ok {
			byDep = map[string]dependencyRow{}
			c.dependencies[srcImportID] = byDep
		}
		byDep[dstImportID] = dependencyRow{TypeName: edge.TypeName, SemverRange: edge.SemverRange}
	}

	return c, nil
}

// isCanonicalRow is a lightweight check that avoids importing the canon
// package's full IsCanonical pass per-row at cache-build time: the store is
// the only writer of URL rows, and it never persists a non-canonical value
// once ingested through Diff, so any further-canonicalizable value here was
// written by an out-of-band process and is treated as non-canonical.
func isCanonicalRow(u core.URLRow) bool {
	return strings.TrimSpace(u.Value) != "" && !strings.HasSuffix(u.Value, "/")
}

// PackageByImportID looks up a cached package by its ecosystem-local id.
func (c *Cache) PackageByImportID(importID string) (core.PackageRow, bool) {
	if c == nil {
		return core.PackageRow{}, false
	}
	row, ok := c.packageByImportID[importID]
	return row, ok
}

// ImportIDs returns every import id currently cached, used by the Pipeline's
// deletion-detection step (§4.5).
func (c *Cache) ImportIDs() map[string]struct{} {
	if c == nil {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(c.packageByImportID))
	for id := range c.packageByImportID {
		out[id] = struct{}{}
	}
	return out
}

// URL looks up a cached URL by its canonical value and type name.
func (c *Cache) URL(value, typeName string) (core.URLRow, bool) {
	if c == nil {
		return core.URLRow{}, false
	}
	row, ok := c.urlByKey[URLKey{Value: value, TypeName: typeName}]
	return row, ok
}

// HasPackageURL reports whether a package -> url link already exists.
func (c *Cache) HasPackageURL(packageID, urlID string) bool {
	if c == nil {
		return false
	}
	set, ok := c.packageURLs[packageID]
	if !ok {
		return false
	}
	_, ok = set[urlID]
	return ok
}

// URLByID looks up a cached URL by its database id.
func (c *Cache) URLByID(id string) (core.URLRow, bool) {
	if c == nil {
		return core.URLRow{}, false
	}
	row, ok := c.urlByID[id]
	return row, ok
}

// LinkedURLs returns the URL rows currently linked to a package, used by the
// Diff engine to compute removed package_urls (§4.4).
func (c *Cache) LinkedURLs(packageID string) []core.URLRow {
	if c == nil {
		return nil
	}
	ids, ok := c.packageURLs[packageID]
	if !ok {
		return nil
	}
	out := make([]core.URLRow, 0, len(ids))
	for id := range ids {
		if row, ok := c.urlByID[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// Dependencies returns the cached dependency-type-by-import-id map for a
// package, keyed by the package's own import id (§4.3).
func (c *Cache) Dependencies(importID string) map[string]dependencyRow {
	if c == nil {
		return nil
	}
	return c.dependencies[importID]
}

// DependencyImportIDs returns the import ids a package currently depends on,
// used by the Diff engine to compute removed edges (§4.4).
func (c *Cache) DependencyImportIDs(packageImportID string) map[string]struct{} {
	out := map[string]struct{}{}
	if c == nil {
		return out
	}
	for depImportID := range c.dependencies[packageImportID] {
		out[depImportID] = struct{}{}
	}
	return out
}

// DependencyType returns the cached edge type for (packageImportID,
// depImportID), if any.
func (c *Cache) DependencyType(packageImportID, depImportID string) (string, *string, bool) {
	if c == nil {
		return "", nil, false
	}
	byDep, ok := c.dependencies[packageImportID]
	if !ok {
		return "", nil, false
	}
	row, ok := byDep[depImportID]
	return row.TypeName, row.SemverRange, ok
}
