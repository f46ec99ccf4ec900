// Package migrations embeds CHAI's SQL schema and exposes it the way the
// teacher's go-services module exposes its own: a single embed.FS plus a
// small Register wrapper that hands the filesystem to a
// persistence.Client.
package migrations

import (
	"embed"
	"io/fs"
)

// schemaFS holds every migration file. CHAI's schema has no dialect-specific
// column types (no jsonb, no Postgres-only extensions), so unlike the
// teacher's tree there is no separate sqlite/ subdirectory — one set of
// plain-SQL migrations is valid against both Postgres and SQLite.
//
//go:embed sql/*.sql
var schemaFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return schemaFS
}
