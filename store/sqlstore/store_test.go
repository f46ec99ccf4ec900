package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/store/sqlstore"
)

type testPersistenceConfig struct{}

func (testPersistenceConfig) GetDebug() bool              { return false }
func (testPersistenceConfig) GetDriver() string           { return "sqlite3" }
func (testPersistenceConfig) GetServer() string           { return "chai-test" }
func (testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (testPersistenceConfig) GetOtelIdentifier() string   { return "chai-tests" }

func newSQLiteStore(t *testing.T) (*sqlstore.Store, func()) {
	t.Helper()

	dsn := fmt.Sprintf("file:chai-test-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	sqlDB, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{}, sqlDB, sqlitedialect.New())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sqlstore.RegisterMigrations(ctx, client))
	require.NoError(t, client.Migrate(ctx))

	store, err := sqlstore.NewFromPersistence(client)
	require.NoError(t, err)

	return store, func() { _ = client.Close() }
}

func TestEnsurePackageManagerIsIdempotent(t *testing.T) {
	store, cleanup := newSQLiteStore(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.EnsurePackageManager(ctx, "crates.io")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := store.EnsurePackageManager(ctx, "crates.io")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestIngestThenLoadRoundTrips(t *testing.T) {
	store, cleanup := newSQLiteStore(t)
	defer cleanup()
	ctx := context.Background()

	pm, err := store.EnsurePackageManager(ctx, "crates.io")
	require.NoError(t, err)

	err = store.Ingest(ctx, pm.ID, core.IngestDelta{
		NewPackages: []core.PackageRow{
			{ImportID: "serde", DerivedID: "crates.io/serde", Name: "serde"},
			{ImportID: "serde_derive", DerivedID: "crates.io/serde_derive", Name: "serde_derive"},
		},
		NewURLs: []core.URLRow{
			{Value: "https://serde.rs", TypeName: core.URLTypeHomepage},
		},
		NewPackageURLs: []core.NewPackageURLRef{
			{PackageImportID: "serde", URLValue: "https://serde.rs", URLTypeName: core.URLTypeHomepage},
		},
		NewDeps: []core.NewDependencyRef{
			{PackageImportID: "serde", DependencyImportID: "serde_derive", TypeName: core.DependencyTypeRuntime},
		},
	})
	require.NoError(t, err)

	packages, edges, err := store.LoadCurrentGraph(ctx, pm.ID)
	require.NoError(t, err)
	require.Len(t, packages, 2)
	require.Len(t, edges, 1)
	require.Equal(t, core.DependencyTypeRuntime, edges[0].TypeName)

	urls, links, err := store.LoadCurrentURLs(ctx, pm.ID)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	require.Equal(t, "https://serde.rs", urls[0].Value)
	require.Len(t, links, 1)
}

func TestDeletePackagesByImportIDRemovesDependentRows(t *testing.T) {
	store, cleanup := newSQLiteStore(t)
	defer cleanup()
	ctx := context.Background()

	pm, err := store.EnsurePackageManager(ctx, "crates.io")
	require.NoError(t, err)

	require.NoError(t, store.Ingest(ctx, pm.ID, core.IngestDelta{
		NewPackages: []core.PackageRow{
			{ImportID: "left-pad", DerivedID: "crates.io/left-pad", Name: "left-pad"},
		},
	}))

	require.NoError(t, store.DeletePackagesByImportID(ctx, pm.ID, []string{"left-pad"}))

	packages, _, err := store.LoadCurrentGraph(ctx, pm.ID)
	require.NoError(t, err)
	require.Empty(t, packages)
}
