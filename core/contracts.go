package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger/LoggerProvider are aliased to glog's contracts, matching the
// teacher's convention of never re-declaring a logging interface it already
// gets from go-logger.
type Logger = glog.Logger
type LoggerProvider = glog.LoggerProvider
type FieldsLogger = glog.FieldsLogger

// MetricsRecorder is the narrow counter/histogram surface every component
// reports through; NopMetricsRecorder is the default when no recorder is
// wired.
type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string)     {}
func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

var _ MetricsRecorder = NopMetricsRecorder{}

// PackageRow/URLRow/DependencyEdge are the store-facing shapes returned by
// GraphReader/URLReader. They carry just enough to seed a Cache (§4.3) and
// are intentionally leaner than the full domain structs in domain.go.
type PackageRow struct {
	ID        string
	ImportID  string
	DerivedID string
	Name      string
	ReadMe    *string
}

type URLRow struct {
	ID      string
	Value   string
	TypeID  string
	TypeName string
}

type PackageURLLink struct {
	PackageID string
	URLID     string
}

type DependencyEdge struct {
	PackageID        string
	DependencyID     string
	DependencyTypeID string
	TypeName         string
	SemverRange      *string
}

// GraphReader materializes the current persisted graph for one package
// manager partition, the Cache's data source (§4.2's load_current_graph /
// load_current_urls).
type GraphReader interface {
	LoadCurrentGraph(ctx context.Context, packageManagerID string) ([]PackageRow, []DependencyEdge, error)
	LoadCurrentURLs(ctx context.Context, packageManagerID string) ([]URLRow, []PackageURLLink, error)
}

// NewPackageURLRef links a package to a URL that may itself be new in this
// same delta, so it addresses both sides by domain identifier rather than
// database id — neither id exists yet when the Diff engine builds this.
type NewPackageURLRef struct {
	PackageImportID string
	URLValue        string
	URLTypeName     string
}

// NewDependencyRef is the new-edge counterpart of NewPackageURLRef: both
// endpoints are addressed by import id since the dependency's target
// package may be new in this same delta.
type NewDependencyRef struct {
	PackageImportID    string
	DependencyImportID string
	TypeName           string
	SemverRange        *string
}

// IngestDelta is the atomic unit a GraphWriter applies; field names mirror
// the Diff engine's five disjoint output sets (§4.4). New-side entries are
// addressed by domain identifier (import id, canonical URL value) since the
// Diff engine never has a database id for a row it has just decided to
// create; existing-side entries (removals) use the ids already resolved
// into the Cache.
type IngestDelta struct {
	NewPackages        []PackageRow
	UpdatedPackages    []PackageRow
	NewURLs            []URLRow
	NewPackageURLs     []NewPackageURLRef
	RemovedPackageURLs []PackageURLLink
	NewDeps            []NewDependencyRef
	RemovedDeps        []DependencyEdge
}

// GraphWriter applies a delta atomically and handles authoritative deletion
// (§4.2, §4.5).
type GraphWriter interface {
	Ingest(ctx context.Context, packageManagerID string, delta IngestDelta) error
	DeletePackagesByImportID(ctx context.Context, packageManagerID string, importIDs []string) error
}

// LookupStore resolves the small reference tables (package manager, url
// type, dependency type) by name, creating them on first use. A Pipeline
// resolves its package manager once per run through EnsurePackageManager;
// url-type and dependency-type ids are resolved inside Ingest, once per name
// per call, rather than through this interface.
type LookupStore interface {
	EnsurePackageManager(ctx context.Context, name string) (PackageManager, error)
	EnsureURLType(ctx context.Context, name string) (URLType, error)
	EnsureDependencyType(ctx context.Context, name string) (DependencyType, error)
}

// Store is the full persistence contract a Pipeline and Deduplicator
// depend on.
type Store interface {
	GraphReader
	GraphWriter
	LookupStore
	CanonStore
}

// CanonStore backs the Deduplicator (§4.7).
type CanonStore interface {
	ListCanons(ctx context.Context) ([]Canon, error)
	LatestHomepages(ctx context.Context) ([]PackageHomepage, error)
	UpsertCanons(ctx context.Context, canons []Canon) ([]Canon, error)
	UpsertCanonPackages(ctx context.Context, links []CanonPackage) error
	UpsertTeaRanks(ctx context.Context, ranks []TeaRank) error
	CanonPackageManagers(ctx context.Context) ([]CanonPackageManagerRow, error)
}

// CanonPackageManagerRow is one (canon, package manager) pairing produced
// by a package belonging to that canon, the raw input to the TeaRank stub
// (§3, §9: counts distinct package managers per canon).
type CanonPackageManagerRow struct {
	CanonID          string
	PackageManagerID string
}

// PackageHomepage is one package's most-recently-updated homepage URL,
// across all ecosystems, as read by the Deduplicator (§4.7 step 2).
type PackageHomepage struct {
	PackageID string
	URL       string
	UpdatedAt time.Time
}
