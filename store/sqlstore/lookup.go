package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/teaxyz/chai/core"
)

// EnsurePackageManager resolves a package manager row by name, creating it
// on first use. Resolved once per pipeline run per §9 and held by the
// caller for the rest of that run, never re-queried per package row.
func (s *Store) EnsurePackageManager(ctx context.Context, name string) (core.PackageManager, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.PackageManager{}, fmt.Errorf("sqlstore: package manager name is required")
	}
	record, err := ensureNamedRow(ctx, s.db, "package_managers", name)
	if err != nil {
		return core.PackageManager{}, err
	}
	return core.PackageManager{ID: record.id, Name: record.name}, nil
}

// EnsureURLType resolves a url_types row by name, creating it on first use.
func (s *Store) EnsureURLType(ctx context.Context, name string) (core.URLType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.URLType{}, fmt.Errorf("sqlstore: url type name is required")
	}
	record, err := ensureNamedRow(ctx, s.db, "url_types", name)
	if err != nil {
		return core.URLType{}, err
	}
	return core.URLType{ID: record.id, Name: record.name}, nil
}

// EnsureDependencyType resolves a dependency_types row by name, creating it
// on first use.
func (s *Store) EnsureDependencyType(ctx context.Context, name string) (core.DependencyType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.DependencyType{}, fmt.Errorf("sqlstore: dependency type name is required")
	}
	record, err := ensureNamedRow(ctx, s.db, "dependency_types", name)
	if err != nil {
		return core.DependencyType{}, err
	}
	return core.DependencyType{ID: record.id, Name: record.name}, nil
}

type namedRow struct {
	id   string
	name string
}

// ensureNamedRow implements the find-or-create-with-conflict-retry pattern
// from sync_cursor_store.go's Upsert: look the row up, and only on a miss
// attempt an insert, retrying the lookup if a concurrent insert raced us to
// the unique constraint on name.
func ensureNamedRow(ctx context.Context, db *bun.DB, table, name string) (namedRow, error) {
	var out namedRow
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := findNamedRowTx(ctx, tx, table, name)
		if err != nil {
			return err
		}
		if found != nil {
			out = *found
			return nil
		}

		id := uuid.NewString()
		_, insertErr := tx.NewRaw(
			"INSERT INTO "+table+" (id, name) VALUES (?, ?)", id, name,
		).Exec(ctx)
		if insertErr != nil {
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			found, err = findNamedRowTx(ctx, tx, table, name)
			if err != nil {
				return err
			}
			if found == nil {
				return insertErr
			}
			out = *found
			return nil
		}
		out = namedRow{id: id, name: name}
		return nil
	})
	return out, err
}

func findNamedRowTx(ctx context.Context, tx bun.Tx, table, name string) (*namedRow, error) {
	var row namedRow
	err := tx.NewRaw(
		"SELECT id, name FROM "+table+" WHERE name = ?", name,
	).Scan(ctx, &row.id, &row.name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
