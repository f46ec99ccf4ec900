package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/teaxyz/chai/core"
)

// LoadCurrentGraph materializes every package and dependency edge in one
// partition, the data source for cache.Load's concurrent graph/url fetch.
func (s *Store) LoadCurrentGraph(ctx context.Context, packageManagerID string) ([]core.PackageRow, []core.DependencyEdge, error) {
	var packages []core.PackageRow
	if err := s.db.NewRaw(
		`SELECT id, import_id, derived_id, name, readme AS read_me FROM packages WHERE package_manager_id = ?`,
		packageManagerID,
	).Scan(ctx, &packages); err != nil {
		return nil, nil, fmt.Errorf("sqlstore: load packages: %w", err)
	}

	var edges []core.DependencyEdge
	if err := s.db.NewRaw(
		`SELECT d.package_id, d.dependency_id, d.dependency_type_id, dt.name AS type_name, d.semver_range
		 FROM dependencies d
		 JOIN packages p ON p.id = d.package_id
		 JOIN dependency_types dt ON dt.id = d.dependency_type_id
		 WHERE p.package_manager_id = ?`,
		packageManagerID,
	).Scan(ctx, &edges); err != nil {
		return nil, nil, fmt.Errorf("sqlstore: load dependencies: %w", err)
	}

	return packages, edges, nil
}

// LoadCurrentURLs materializes every URL and package-url link reachable
// from this partition's packages.
func (s *Store) LoadCurrentURLs(ctx context.Context, packageManagerID string) ([]core.URLRow, []core.PackageURLLink, error) {
	var urls []core.URLRow
	if err := s.db.NewRaw(
		`SELECT DISTINCT u.id, u.value, u.url_type_id AS type_id, ut.name AS type_name
		 FROM urls u
		 JOIN url_types ut ON ut.id = u.url_type_id
		 JOIN package_urls pu ON pu.url_id = u.id
		 JOIN packages p ON p.id = pu.package_id
		 WHERE p.package_manager_id = ?`,
		packageManagerID,
	).Scan(ctx, &urls); err != nil {
		return nil, nil, fmt.Errorf("sqlstore: load urls: %w", err)
	}

	var links []core.PackageURLLink
	if err := s.db.NewRaw(
		`SELECT pu.package_id, pu.url_id
		 FROM package_urls pu
		 JOIN packages p ON p.id = pu.package_id
		 WHERE p.package_manager_id = ?`,
		packageManagerID,
	).Scan(ctx, &links); err != nil {
		return nil, nil, fmt.Errorf("sqlstore: load package urls: %w", err)
	}

	return urls, links, nil
}

// Ingest applies a diff.Result's delta atomically: either every new row,
// update, link, and removal lands, or none does (§4.2, §7 — a stage-level
// failure must never leave a partial ingest).
func (s *Store) Ingest(ctx context.Context, packageManagerID string, delta core.IngestDelta) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := time.Now().UTC()

		packageIDByImportID := map[string]string{}

		for _, pkg := range delta.NewPackages {
			id := uuid.NewString()
			record := &packageRecord{
				ID:               id,
				PackageManagerID: packageManagerID,
				ImportID:         pkg.ImportID,
				DerivedID:        pkg.DerivedID,
				Name:             pkg.Name,
				ReadMe:           pkg.ReadMe,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: insert package %s: %w", pkg.ImportID, err)
			}
			packageIDByImportID[pkg.ImportID] = id
		}

		for _, pkg := range delta.UpdatedPackages {
			_, err := tx.NewUpdate().
				Model((*packageRecord)(nil)).
				Set("name = ?", pkg.Name).
				Set("readme = ?", pkg.ReadMe).
				Set("updated_at = ?", now).
				Where("id = ?", pkg.ID).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("sqlstore: update package %s: %w", pkg.ImportID, err)
			}
		}

		urlIDByKey := map[urlKey]string{}
		urlTypeIDByName := map[string]string{}
		for _, u := range delta.NewURLs {
			typeID, err := ensureDependentTypeTx(ctx, tx, "url_types", u.TypeName, urlTypeIDByName)
			if err != nil {
				return err
			}
			id := uuid.NewString()
			record := &urlRecord{ID: id, Value: u.Value, URLTypeID: typeID, UpdatedAt: now}
			if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: insert url %s: %w", u.Value, err)
			}
			urlIDByKey[urlKey{value: u.Value, typeName: u.TypeName}] = id
		}

		for _, ref := range delta.NewPackageURLs {
			packageID, err := resolvePackageID(ctx, tx, packageManagerID, ref.PackageImportID, packageIDByImportID)
			if err != nil {
				return err
			}
			urlID, err := resolveURLID(ctx, tx, ref.URLValue, ref.URLTypeName, urlIDByKey)
			if err != nil {
				return err
			}
			link := &packageURLRecord{ID: uuid.NewString(), PackageID: packageID, URLID: urlID}
			if _, err := tx.NewInsert().Model(link).
				On("CONFLICT (package_id, url_id) DO NOTHING").
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: link package url %s/%s: %w", ref.PackageImportID, ref.URLValue, err)
			}
		}

		for _, removed := range delta.RemovedPackageURLs {
			if _, err := tx.NewDelete().
				Model((*packageURLRecord)(nil)).
				Where("package_id = ? AND url_id = ?", removed.PackageID, removed.URLID).
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: unlink package url: %w", err)
			}
		}

		// RemovedDeps are deleted here and again after the NewDeps inserts
		// below.
		for _, removed := range delta.RemovedDeps {
			if _, err := tx.NewDelete().
				Model((*dependencyRecord)(nil)).
				Where("package_id = ? AND dependency_id = ?", removed.PackageID, removed.DependencyID).
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: remove dependency: %w", err)
			}
		}

		depTypeIDByName := map[string]string{}
		for _, ref := range delta.NewDeps {
			packageID, err := resolvePackageID(ctx, tx, packageManagerID, ref.PackageImportID, packageIDByImportID)
			if err != nil {
				return err
			}
			dependencyID, err := resolvePackageID(ctx, tx, packageManagerID, ref.DependencyImportID, packageIDByImportID)
			if err != nil {
				return fmt.Errorf("sqlstore: resolve dependency %s: %w", ref.DependencyImportID, err)
			}
			typeID, err := ensureDependentTypeTx(ctx, tx, "dependency_types", ref.TypeName, depTypeIDByName)
			if err != nil {
				return err
			}
			record := &dependencyRecord{
				ID:               uuid.NewString(),
				PackageID:        packageID,
				DependencyID:     dependencyID,
				DependencyTypeID: typeID,
				SemverRange:      ref.SemverRange,
			}
			if _, err := tx.NewInsert().Model(record).
				On("CONFLICT (package_id, dependency_id) DO UPDATE").
				Set("dependency_type_id = EXCLUDED.dependency_type_id").
				Set("semver_range = EXCLUDED.semver_range").
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: insert dependency %s -> %s: %w", ref.PackageImportID, ref.DependencyImportID, err)
			}
		}

		for _, removed := range delta.RemovedDeps {
			if _, err := tx.NewDelete().
				Model((*dependencyRecord)(nil)).
				Where("package_id = ? AND dependency_id = ?", removed.PackageID, removed.DependencyID).
				Exec(ctx); err != nil {
				return fmt.Errorf("sqlstore: remove dependency: %w", err)
			}
		}

		return nil
	})
}

// DeletePackagesByImportID removes packages no longer present upstream, for
// the authoritative adapters (crates, pkgx) per §4.5/§4.6. Dependent rows
// (package_urls, dependencies, canon_packages) are removed first so the
// foreign keys never block the package delete.
func (s *Store) DeletePackagesByImportID(ctx context.Context, packageManagerID string, importIDs []string) error {
	if len(importIDs) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var ids []string
		if err := tx.NewRaw(
			`SELECT id FROM packages WHERE package_manager_id = ? AND import_id IN (?)`,
			packageManagerID, bun.In(importIDs),
		).Scan(ctx, &ids); err != nil {
			return fmt.Errorf("sqlstore: resolve packages to delete: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		if _, err := tx.NewRaw(`DELETE FROM canon_packages WHERE package_id IN (?)`, bun.In(ids)).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: delete dependent canon_packages rows: %w", err)
		}
		if _, err := tx.NewRaw(`DELETE FROM user_packages WHERE package_id IN (?)`, bun.In(ids)).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: delete dependent user_packages rows: %w", err)
		}
		if _, err := tx.NewRaw(`DELETE FROM package_urls WHERE package_id IN (?)`, bun.In(ids)).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: delete dependent package_urls rows: %w", err)
		}
		if _, err := tx.NewRaw(
			`DELETE FROM dependencies WHERE package_id IN (?) OR dependency_id IN (?)`,
			bun.In(ids), bun.In(ids),
		).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: delete dependent dependencies rows: %w", err)
		}

		if _, err := tx.NewRaw(`DELETE FROM packages WHERE id IN (?)`, bun.In(ids)).Exec(ctx); err != nil {
			return fmt.Errorf("sqlstore: delete packages: %w", err)
		}
		return nil
	})
}

type urlKey struct {
	value    string
	typeName string
}

func resolvePackageID(ctx context.Context, tx bun.Tx, packageManagerID, importID string, justInserted map[string]string) (string, error) {
	if id, ok := justInserted[importID]; ok {
		return id, nil
	}
	var id string
	err := tx.NewRaw(
		`SELECT id FROM packages WHERE package_manager_id = ? AND import_id = ?`,
		packageManagerID, importID,
	).Scan(ctx, &id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", core.ErrMissingDependencyEndpoint, importID)
		}
		return "", err
	}
	return id, nil
}

func resolveURLID(ctx context.Context, tx bun.Tx, value, typeName string, justInserted map[urlKey]string) (string, error) {
	key := urlKey{value: value, typeName: typeName}
	if id, ok := justInserted[key]; ok {
		return id, nil
	}
	var id string
	err := tx.NewRaw(
		`SELECT u.id FROM urls u JOIN url_types ut ON ut.id = u.url_type_id WHERE u.value = ? AND ut.name = ?`,
		value, typeName,
	).Scan(ctx, &id)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("sqlstore: url %s/%s not found", value, typeName)
		}
		return "", err
	}
	return id, nil
}

// ensureDependentTypeTx resolves a url_types/dependency_types id by name
// within an already-open transaction, memoizing within this one Ingest
// call so a snapshot with many rows of the same type only looks it up
// once.
func ensureDependentTypeTx(ctx context.Context, tx bun.Tx, table, name string, cache map[string]string) (string, error) {
	if id, ok := cache[name]; ok {
		return id, nil
	}
	var id string
	err := tx.NewRaw("SELECT id FROM "+table+" WHERE name = ?", name).Scan(ctx, &id)
	if err == nil {
		cache[name] = id
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	id = uuid.NewString()
	_, insertErr := tx.NewRaw("INSERT INTO "+table+" (id, name) VALUES (?, ?)", id, name).Exec(ctx)
	if insertErr != nil {
		if isUniqueViolation(insertErr) {
			if err := tx.NewRaw("SELECT id FROM "+table+" WHERE name = ?", name).Scan(ctx, &id); err != nil {
				return "", err
			}
			cache[name] = id
			return id, nil
		}
		return "", insertErr
	}
	cache[name] = id
	return id, nil
}
