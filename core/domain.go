// Package core declares the CHAI domain model: the normalized entities every
// ecosystem adapter projects into, and the contracts (Store, Cache, Diff,
// Pipeline collaborators) those entities flow through. It carries no
// dependency on any specific database or ecosystem.
package core

import (
	"fmt"
	"strings"
	"time"
)

// Dependency type names, per the priority order in §3 of the spec (highest
// first). Declared as a slice rather than a map so ties resolve
// deterministically regardless of map iteration order.
const (
	DependencyTypeRuntime       = "runtime"
	DependencyTypeBuild         = "build"
	DependencyTypeTest          = "test"
	DependencyTypeRecommended   = "recommended"
	DependencyTypeOptional      = "optional"
	DependencyTypeUsesFromMacOS = "uses_from_macos"
)

var dependencyTypePriority = []string{
	DependencyTypeRuntime,
	DependencyTypeBuild,
	DependencyTypeTest,
	DependencyTypeRecommended,
	DependencyTypeOptional,
	DependencyTypeUsesFromMacOS,
}

// DependencyTypeRank returns the priority rank of a dependency type name;
// lower is higher priority. Unrecognized names rank last so they never win
// over a known type.
func DependencyTypeRank(name string) int {
	name = strings.TrimSpace(strings.ToLower(name))
	for i, candidate := range dependencyTypePriority {
		if candidate == name {
			return i
		}
	}
	return len(dependencyTypePriority)
}

// HigherPriorityDependencyType returns whichever of a, b ranks higher. Ties
// keep a.
func HigherPriorityDependencyType(a, b string) string {
	if DependencyTypeRank(b) < DependencyTypeRank(a) {
		return b
	}
	return a
}

// URL type names. The upstream set is open-ended (§3 lists "…"), so URLType
// rows are looked up by name rather than modeled as a closed enum.
const (
	URLTypeHomepage      = "homepage"
	URLTypeSource        = "source"
	URLTypeRepository    = "repository"
	URLTypeDocumentation = "documentation"
)

// PackageManager identifies an upstream ecosystem: "crates", "homebrew",
// "debian", "pkgx".
type PackageManager struct {
	ID   string
	Name string
}

// Validate reports whether the package manager can be used to partition a
// pipeline run.
func (pm PackageManager) Validate() error {
	if strings.TrimSpace(pm.Name) == "" {
		return fmt.Errorf("core: package manager name is required")
	}
	return nil
}

// DerivedID returns the global identifier "<pm_name>/<import_id>".
func DerivedID(pmName, importID string) string {
	return strings.TrimSpace(pmName) + "/" + strings.TrimSpace(importID)
}

// Package is a single upstream package as projected into the normalized
// schema. ReadMe is optional, per §3.
type Package struct {
	ID               string
	PackageManagerID string
	ImportID         string
	DerivedID        string
	Name             string
	ReadMe           *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// URL is a canonical URL persisted against a URLType.
type URL struct {
	ID        string
	Value     string
	URLTypeID string
}

// URLType names a category of URL (homepage, source, repository, …).
type URLType struct {
	ID   string
	Name string
}

// PackageURL links a Package to a URL.
type PackageURL struct {
	ID        string
	PackageID string
	URLID     string
}

// DependencyType names an edge kind (runtime, build, test, …).
type DependencyType struct {
	ID   string
	Name string
}

// Dependency is a directed edge package -> dependency, typed, and optionally
// constrained by a semver range. The range is carried through verbatim and
// never evaluated — semver constraint evaluation is out of scope.
type Dependency struct {
	ID               string
	PackageID        string
	DependencyID     string
	DependencyTypeID string
	SemverRange      *string
}

// User is an upstream-reported account (package owner, maintainer, …).
type User struct {
	ID       string
	Username string
	SourceID string
}

// UserPackage links a User to a Package they own or maintain.
type UserPackage struct {
	ID        string
	UserID    string
	PackageID string
}

// Canon is a canonical project identity: the merged cross-ecosystem record
// keyed by canonical homepage URL.
type Canon struct {
	ID   string
	URL  string
	Name string
}

// CanonPackage links a Package to the Canon it has been deduplicated into. A
// package belongs to at most one canon at a time.
type CanonPackage struct {
	ID        string
	CanonID   string
	PackageID string
}

// TeaRank holds the single ranking row computed for a Canon.
type TeaRank struct {
	CanonID      string
	Rank         float64
	CalculatedAt time.Time
}
