package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/teaxyz/chai/migrations"
)

// RegisterMigrations wires the embedded schema into a persistence.Client,
// mirroring the teacher's own migration bootstrap
// (servicemigrations.Register + client.RegisterSQLMigrations) used in its
// sqlite integration test harness. CHAI's schema is dialect-agnostic, so
// unlike the teacher's postgres/sqlite split, one filesystem is registered
// once regardless of which dialect the client was opened with.
func RegisterMigrations(ctx context.Context, client *persistence.Client) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	filesystems, err := migrations.Filesystems()
	if err != nil {
		return err
	}
	client.RegisterSQLMigrations(filesystems[0].FS)
	return nil
}
