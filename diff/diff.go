// Package diff implements the CHAI diff engine (§4.4): a pure, deterministic
// function from a parsed upstream snapshot and the current Cache to a
// five-set delta the Store applies atomically. It performs no I/O.
package diff

import (
	"fmt"
	"sort"

	"github.com/teaxyz/chai/cache"
	"github.com/teaxyz/chai/canon"
	"github.com/teaxyz/chai/core"
)

// NormalizedURL is a single URL as an adapter parser emits it, before
// canonicalization.
type NormalizedURL struct {
	Value    string
	TypeName string
}

// NormalizedDependency is a single dependency edge as an adapter parser
// emits it, addressed by the dependency's import id within the same
// package manager partition.
type NormalizedDependency struct {
	ImportID    string
	TypeName    string
	SemverRange *string
}

// NormalizedPackage is one upstream package as projected by an ecosystem
// adapter, the common currency every parser (crates, homebrew, debian,
// pkgx) produces for the Diff engine to consume.
type NormalizedPackage struct {
	ImportID     string
	Name         string
	ReadMe       *string
	URLs         []NormalizedURL
	Dependencies []NormalizedDependency
}

// Result is the Diff engine's output: the delta to apply plus any row-level
// warnings collected along the way (§4.4, §7).
type Result struct {
	Delta    core.IngestDelta
	Warnings []core.Warning
}

// Compute builds the delta between a Cache baseline and a freshly parsed
// snapshot for one package manager partition. It never mutates the Cache
// and never touches a Store; Pipeline is responsible for applying the
// result.
func Compute(c *cache.Cache, pmName string, snapshot []NormalizedPackage) Result {
	res := Result{}

	// Canonicalize every URL up front so duplicate canonical values across
	// packages only ever produce one new_urls entry (§4.1, §4.4).
	type canonicalURL struct {
		value    string
		typeName string
	}
	seenNewURLValues := map[canonicalURL]struct{}{}

	snapshotByImportID := make(map[string]NormalizedPackage, len(snapshot))
	for _, pkg := range snapshot {
		snapshotByImportID[pkg.ImportID] = pkg
	}

	for _, pkg := range snapshot {
		cached, existed := c.PackageByImportID(pkg.ImportID)

		if !existed {
			res.Delta.NewPackages = append(res.Delta.NewPackages, core.PackageRow{
				ImportID:  pkg.ImportID,
				DerivedID: core.DerivedID(pmName, pkg.ImportID),
				Name:      pkg.Name,
				ReadMe:    pkg.ReadMe,
			})
		} else if packageChanged(cached, pkg) {
			row := cached
			row.Name = pkg.Name
			row.ReadMe = pkg.ReadMe
			res.Delta.UpdatedPackages = append(res.Delta.UpdatedPackages, row)
		}

		desiredURLs := map[cache.URLKey]struct{}{}
		for _, u := range pkg.URLs {
			canonical, err := canon.Canonical(u.Value)
			if err != nil {
				res.Warnings = append(res.Warnings, core.Warning{
					Kind:    core.WarningKindMalformedURL,
					Message: fmt.Sprintf("dropping malformed url for %s: %v", pkg.ImportID, err),
					Detail:  u.Value,
				})
				continue
			}
			key := cache.URLKey{Value: canonical, TypeName: u.TypeName}
			desiredURLs[key] = struct{}{}

			if _, ok := c.URL(canonical, u.TypeName); !ok {
				cu := canonicalURL{value: canonical, typeName: u.TypeName}
				if _, already := seenNewURLValues[cu]; !already {
					seenNewURLValues[cu] = struct{}{}
					res.Delta.NewURLs = append(res.Delta.NewURLs, core.URLRow{Value: canonical, TypeName: u.TypeName})
				}
			}

			alreadyLinked := existed && isLinked(c, cached.ID, canonical, u.TypeName)
			if !alreadyLinked {
				res.Delta.NewPackageURLs = append(res.Delta.NewPackageURLs, core.NewPackageURLRef{
					PackageImportID: pkg.ImportID,
					URLValue:        canonical,
					URLTypeName:     u.TypeName,
				})
			}
		}

		if existed {
			for _, linked := range c.LinkedURLs(cached.ID) {
				key := cache.URLKey{Value: linked.Value, TypeName: linked.TypeName}
				if _, stillWanted := desiredURLs[key]; !stillWanted {
					res.Delta.RemovedPackageURLs = append(res.Delta.RemovedPackageURLs, core.PackageURLLink{
						PackageID: cached.ID,
						URLID:     linked.ID,
					})
				}
			}
		}

		// Group snapshot edges by dependency import id first: when the same
		// source record lists a dependency under more than one type, only
		// the highest-priority type survives (§3, §4.4 step 4).
		highestByDepImportID := map[string]NormalizedDependency{}
		depOrder := make([]string, 0, len(pkg.Dependencies))
		for _, dep := range pkg.Dependencies {
			if dep.ImportID == "" {
				res.Warnings = append(res.Warnings, core.Warning{
					Kind:    core.WarningKindMissingDependency,
					Message: fmt.Sprintf("dropping dependency with empty import id for %s", pkg.ImportID),
				})
				continue
			}
			existing, seen := highestByDepImportID[dep.ImportID]
			if !seen {
				depOrder = append(depOrder, dep.ImportID)
				highestByDepImportID[dep.ImportID] = dep
				continue
			}
			if core.HigherPriorityDependencyType(dep.TypeName, existing.TypeName) == dep.TypeName {
				highestByDepImportID[dep.ImportID] = dep
			}
		}

		desiredDeps := map[string]struct{}{}
		for _, depImportID := range depOrder {
			dep := highestByDepImportID[depImportID]

			if !dependencyResolvable(c, snapshotByImportID, dep.ImportID) {
				res.Warnings = append(res.Warnings, core.Warning{
					Kind:    core.WarningKindMissingDependency,
					Message: fmt.Sprintf("dropping dependency %s -> %s: unresolvable endpoint", pkg.ImportID, dep.ImportID),
					Detail:  dep.ImportID,
				})
				continue
			}
			desiredDeps[dep.ImportID] = struct{}{}

			existingType, _, hasEdge := c.DependencyType(pkg.ImportID, dep.ImportID)
			if hasEdge && existingType == dep.TypeName {
				continue
			}
			// A changed type is modeled as remove-then-add so a single edge
			// never has two rows with different priorities (§3 invariant).
			if hasEdge {
				if depPkg, ok := c.PackageByImportID(dep.ImportID); ok {
					res.Delta.RemovedDeps = append(res.Delta.RemovedDeps, core.DependencyEdge{
						PackageID:    cached.ID,
						DependencyID: depPkg.ID,
					})
				}
			}
			res.Delta.NewDeps = append(res.Delta.NewDeps, core.NewDependencyRef{
				PackageImportID:    pkg.ImportID,
				DependencyImportID: dep.ImportID,
				TypeName:           dep.TypeName,
				SemverRange:        dep.SemverRange,
			})
		}

		if existed {
			for depImportID := range c.DependencyImportIDs(pkg.ImportID) {
				if _, stillWanted := desiredDeps[depImportID]; stillWanted {
					continue
				}
				depPkg, ok := c.PackageByImportID(depImportID)
				if !ok {
					continue
				}
				res.Delta.RemovedDeps = append(res.Delta.RemovedDeps, core.DependencyEdge{
					PackageID:    cached.ID,
					DependencyID: depPkg.ID,
				})
			}
		}
	}

	sortDelta(&res.Delta)
	return res
}

// DeletedImportIDs returns the import ids present in the Cache but absent
// from the snapshot, the candidate set for authoritative deletion (§4.5).
// Only crates and pkgx pipelines call this; homebrew and debian are
// non-authoritative and never delete.
func DeletedImportIDs(c *cache.Cache, snapshot []NormalizedPackage) []string {
	present := make(map[string]struct{}, len(snapshot))
	for _, pkg := range snapshot {
		present[pkg.ImportID] = struct{}{}
	}
	var deleted []string
	for importID := range c.ImportIDs() {
		if _, ok := present[importID]; !ok {
			deleted = append(deleted, importID)
		}
	}
	sort.Strings(deleted)
	return deleted
}

func packageChanged(cached core.PackageRow, fresh NormalizedPackage) bool {
	if cached.Name != fresh.Name {
		return true
	}
	cachedReadMe := ""
	if cached.ReadMe != nil {
		cachedReadMe = *cached.ReadMe
	}
	freshReadMe := ""
	if fresh.ReadMe != nil {
		freshReadMe = *fresh.ReadMe
	}
	return cachedReadMe != freshReadMe
}

// dependencyResolvable reports whether a dependency's import id names a
// package this run actually knows about — either already in the Cache or
// present somewhere in the freshly parsed snapshot (about to be inserted or
// updated in the same Ingest). An id satisfying neither is a row-level
// MissingDependencyEndpoint (§7): logged and dropped here so it never
// reaches Store.Ingest, where resolvePackageID would otherwise abort the
// whole transaction.
func dependencyResolvable(c *cache.Cache, snapshotByImportID map[string]NormalizedPackage, importID string) bool {
	if _, ok := c.PackageByImportID(importID); ok {
		return true
	}
	_, ok := snapshotByImportID[importID]
	return ok
}

func isLinked(c *cache.Cache, packageID, urlValue, urlTypeName string) bool {
	url, ok := c.URL(urlValue, urlTypeName)
	if !ok {
		return false
	}
	return c.HasPackageURL(packageID, url.ID)
}

// sortDelta imposes a deterministic order on every slice in the delta so
// repeated runs over an unchanged snapshot produce byte-identical deltas
// (§8 idempotence property).
func sortDelta(d *core.IngestDelta) {
	sort.Slice(d.NewPackages, func(i, j int) bool { return d.NewPackages[i].ImportID < d.NewPackages[j].ImportID })
	sort.Slice(d.UpdatedPackages, func(i, j int) bool { return d.UpdatedPackages[i].ImportID < d.UpdatedPackages[j].ImportID })
	sort.Slice(d.NewURLs, func(i, j int) bool {
		if d.NewURLs[i].Value != d.NewURLs[j].Value {
			return d.NewURLs[i].Value < d.NewURLs[j].Value
		}
		return d.NewURLs[i].TypeName < d.NewURLs[j].TypeName
	})
	sort.Slice(d.NewPackageURLs, func(i, j int) bool {
		a, b := d.NewPackageURLs[i], d.NewPackageURLs[j]
		if a.PackageImportID != b.PackageImportID {
			return a.PackageImportID < b.PackageImportID
		}
		if a.URLValue != b.URLValue {
			return a.URLValue < b.URLValue
		}
		return a.URLTypeName < b.URLTypeName
	})
	sort.Slice(d.RemovedPackageURLs, func(i, j int) bool {
		a, b := d.RemovedPackageURLs[i], d.RemovedPackageURLs[j]
		if a.PackageID != b.PackageID {
			return a.PackageID < b.PackageID
		}
		return a.URLID < b.URLID
	})
	sort.Slice(d.NewDeps, func(i, j int) bool {
		a, b := d.NewDeps[i], d.NewDeps[j]
		if a.PackageImportID != b.PackageImportID {
			return a.PackageImportID < b.PackageImportID
		}
		return a.DependencyImportID < b.DependencyImportID
	})
	sort.Slice(d.RemovedDeps, func(i, j int) bool {
		a, b := d.RemovedDeps[i], d.RemovedDeps[j]
		if a.PackageID != b.PackageID {
			return a.PackageID < b.PackageID
		}
		return a.DependencyID < b.DependencyID
	})
}
