package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/teaxyz/chai/core"
)

// ListCanons returns every canonical project identity, the Deduplicator's
// read-side input (§4.7 step 1).
func (s *Store) ListCanons(ctx context.Context) ([]core.Canon, error) {
	var rows []struct {
		ID   string `bun:"id"`
		URL  string `bun:"url"`
		Name string `bun:"name"`
	}
	if err := s.db.NewRaw(`SELECT id, url, name FROM canons`).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sqlstore: list canons: %w", err)
	}
	out := make([]core.Canon, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.Canon{ID: r.ID, URL: r.URL, Name: r.Name})
	}
	return out, nil
}

// LatestHomepages returns each package's most recently updated homepage
// URL across every ecosystem, the Deduplicator's merge key source
// (§4.7 step 2). A package can carry more than one homepage link once its
// upstream homepage changes, since package_urls rows are append-only
// (§4.4, §9); ROW_NUMBER rather than DISTINCT ON picks the winner per
// package because it works unchanged against both the Postgres and SQLite
// dialects this store targets.
func (s *Store) LatestHomepages(ctx context.Context) ([]core.PackageHomepage, error) {
	var rows []core.PackageHomepage
	if err := s.db.NewRaw(`
		SELECT package_id, url, updated_at FROM (
			SELECT p.id AS package_id, u.value AS url, u.updated_at AS updated_at,
			       ROW_NUMBER() OVER (PARTITION BY p.id ORDER BY u.updated_at DESC, u.id DESC) AS rn
			FROM packages p
			JOIN package_urls pu ON pu.package_id = p.id
			JOIN urls u ON u.id = pu.url_id
			JOIN url_types ut ON ut.id = u.url_type_id
			WHERE ut.name = ?
		) latest
		WHERE rn = 1`, core.URLTypeHomepage,
	).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sqlstore: load latest homepages: %w", err)
	}
	return rows, nil
}

// UpsertCanons creates or updates canon rows keyed by canonical URL,
// returning every row (with ids populated) for the caller to link
// packages against.
func (s *Store) UpsertCanons(ctx context.Context, canons []core.Canon) ([]core.Canon, error) {
	if len(canons) == 0 {
		return nil, nil
	}
	out := make([]core.Canon, 0, len(canons))
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, c := range canons {
			var existingID string
			err := tx.NewRaw(`SELECT id FROM canons WHERE url = ?`, c.URL).Scan(ctx, &existingID)
			switch {
			case err == nil:
				if _, err := tx.NewRaw(`UPDATE canons SET name = ? WHERE id = ?`, c.Name, existingID).Exec(ctx); err != nil {
					return fmt.Errorf("sqlstore: update canon %s: %w", c.URL, err)
				}
				out = append(out, core.Canon{ID: existingID, URL: c.URL, Name: c.Name})
			case isNoRows(err):
				id := uuid.NewString()
				record := &canonRecord{ID: id, URL: c.URL, Name: c.Name}
				if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
					return fmt.Errorf("sqlstore: insert canon %s: %w", c.URL, err)
				}
				out = append(out, core.Canon{ID: id, URL: c.URL, Name: c.Name})
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertCanonPackages links each package to the canon it was deduplicated
// into. A package belongs to at most one canon (§3), so an existing link
// is repointed rather than duplicated.
func (s *Store) UpsertCanonPackages(ctx context.Context, links []core.CanonPackage) error {
	if len(links) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, link := range links {
			var existingID string
			err := tx.NewRaw(`SELECT id FROM canon_packages WHERE package_id = ?`, link.PackageID).Scan(ctx, &existingID)
			switch {
			case err == nil:
				if _, err := tx.NewRaw(
					`UPDATE canon_packages SET canon_id = ? WHERE id = ?`, link.CanonID, existingID,
				).Exec(ctx); err != nil {
					return fmt.Errorf("sqlstore: repoint canon package %s: %w", link.PackageID, err)
				}
			case isNoRows(err):
				record := &canonPackageRecord{ID: uuid.NewString(), CanonID: link.CanonID, PackageID: link.PackageID}
				if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
					return fmt.Errorf("sqlstore: link canon package %s: %w", link.PackageID, err)
				}
			default:
				return err
			}
		}
		return nil
	})
}

// UpsertTeaRanks writes the single ranking row per canon computed by the
// TeaRank stub (§3).
func (s *Store) UpsertTeaRanks(ctx context.Context, ranks []core.TeaRank) error {
	if len(ranks) == 0 {
		return nil
	}
	now := time.Now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, rank := range ranks {
			calculatedAt := rank.CalculatedAt
			if calculatedAt.IsZero() {
				calculatedAt = now
			}
			_, err := tx.NewInsert().
				Model(&teaRankRecord{CanonID: rank.CanonID, Rank: rank.Rank, CalculatedAt: calculatedAt}).
				On("CONFLICT (canon_id) DO UPDATE").
				Set("rank = EXCLUDED.rank").
				Set("calculated_at = EXCLUDED.calculated_at").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("sqlstore: upsert tea rank %s: %w", rank.CanonID, err)
			}
		}
		return nil
	})
}

// CanonPackageManagers returns every (canon, package manager) pairing
// implied by the current canon_packages links, the raw input the TeaRank
// stub reduces to a per-canon distinct count (§3, §9).
func (s *Store) CanonPackageManagers(ctx context.Context) ([]core.CanonPackageManagerRow, error) {
	var rows []core.CanonPackageManagerRow
	if err := s.db.NewRaw(`
		SELECT cp.canon_id AS canon_id, p.package_manager_id AS package_manager_id
		FROM canon_packages cp
		JOIN packages p ON p.id = cp.package_id`,
	).Scan(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sqlstore: load canon package managers: %w", err)
	}
	return rows, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
