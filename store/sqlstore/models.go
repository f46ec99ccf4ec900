// Package sqlstore implements core.Store against bun, the teacher's ORM,
// following its store/sql package layout: one models.go for every bun
// record, one Store type built from either a *bun.DB or a
// persistence.Client (store.go), and raw-SQL methods where the graph is naturally
// set-oriented rather than single-row (mirroring outbox_store.go's
// ClaimBatch and sync_cursor_store.go's upsert-with-retry).
package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type packageManagerRecord struct {
	bun.BaseModel `bun:"table:package_managers,alias:pm"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

type packageRecord struct {
	bun.BaseModel `bun:"table:packages,alias:p"`

	ID               string    `bun:"id,pk"`
	PackageManagerID string    `bun:"package_manager_id,notnull"`
	ImportID         string    `bun:"import_id,notnull"`
	DerivedID        string    `bun:"derived_id,notnull"`
	Name             string    `bun:"name,notnull"`
	ReadMe           *string   `bun:"readme"`
	CreatedAt        time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type urlTypeRecord struct {
	bun.BaseModel `bun:"table:url_types,alias:ut"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

type urlRecord struct {
	bun.BaseModel `bun:"table:urls,alias:u"`

	ID        string    `bun:"id,pk"`
	Value     string    `bun:"value,notnull"`
	URLTypeID string    `bun:"url_type_id,notnull"`
	UpdatedAt time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type packageURLRecord struct {
	bun.BaseModel `bun:"table:package_urls,alias:pu"`

	ID        string `bun:"id,pk"`
	PackageID string `bun:"package_id,notnull"`
	URLID     string `bun:"url_id,notnull"`
}

type dependencyTypeRecord struct {
	bun.BaseModel `bun:"table:dependency_types,alias:dt"`

	ID   string `bun:"id,pk"`
	Name string `bun:"name,notnull"`
}

type dependencyRecord struct {
	bun.BaseModel `bun:"table:dependencies,alias:d"`

	ID               string  `bun:"id,pk"`
	PackageID        string  `bun:"package_id,notnull"`
	DependencyID     string  `bun:"dependency_id,notnull"`
	DependencyTypeID string  `bun:"dependency_type_id,notnull"`
	SemverRange      *string `bun:"semver_range"`
}

type userRecord struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID       string `bun:"id,pk"`
	Username string `bun:"username,notnull"`
	SourceID string `bun:"source_id,notnull"`
}

type userPackageRecord struct {
	bun.BaseModel `bun:"table:user_packages,alias:up"`

	ID        string `bun:"id,pk"`
	UserID    string `bun:"user_id,notnull"`
	PackageID string `bun:"package_id,notnull"`
}

type canonRecord struct {
	bun.BaseModel `bun:"table:canons,alias:c"`

	ID   string `bun:"id,pk"`
	URL  string `bun:"url,notnull"`
	Name string `bun:"name,notnull"`
}

type canonPackageRecord struct {
	bun.BaseModel `bun:"table:canon_packages,alias:cp"`

	ID        string `bun:"id,pk"`
	CanonID   string `bun:"canon_id,notnull"`
	PackageID string `bun:"package_id,notnull"`
}

type teaRankRecord struct {
	bun.BaseModel `bun:"table:tea_ranks,alias:tr"`

	CanonID      string    `bun:"canon_id,pk"`
	Rank         float64   `bun:"rank,notnull"`
	CalculatedAt time.Time `bun:"calculated_at,nullzero,notnull,default:current_timestamp"`
}
