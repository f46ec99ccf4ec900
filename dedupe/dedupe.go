// Package dedupe implements the canonical-project deduplicator (§4.7/§4.9):
// a standalone job that merges packages across ecosystems sharing a
// canonical homepage URL. It is grounded on
// core/sync_planner_service.go's plan-then-apply split — Plan is a pure
// function of its inputs, Apply is the only place that writes.
package dedupe

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/teaxyz/chai/canon"
	"github.com/teaxyz/chai/core"
)

// Plan is the deterministic output of comparing the current Canon table
// against every package's latest homepage URL. Over unchanged input a
// second plan has no NewCanons, but CanonPackages still lists every
// package's link, and Apply writes those links again.
type Plan struct {
	NewCanons        []core.Canon
	CanonPackages    []core.CanonPackage
	MalformedDropped int

	// canonicalURLByPackageID backs Apply's post-insert canon id
	// resolution for links whose CanonID was unknown at plan time
	// (the canon itself didn't exist yet).
	canonicalURLByPackageID map[string]string
}

// ComputePlan implements §4.7 steps 1-3: read the current Canon set, pick
// each package's latest homepage, canonicalize it, and decide which
// canonical URLs are new versus already known. It performs no writes.
func ComputePlan(existingCanons []core.Canon, homepages []core.PackageHomepage) Plan {
	canonIDByURL := make(map[string]string, len(existingCanons))
	for _, c := range existingCanons {
		canonIDByURL[c.URL] = c.ID
	}

	var plan Plan
	newCanonURLs := map[string]struct{}{}

	type pendingLink struct {
		packageID string
		url       string
		updatedAt time.Time
	}
	// latestByPackageID guards the CanonPackage.package_id-unique invariant
	// (§3) even if a CanonStore ever hands back more than one homepage row
	// for the same package — package_urls links are append-only (§4.4, §9),
	// so a package whose homepage changed upstream can have several. Only
	// the most recently updated one wins.
	latestByPackageID := map[string]pendingLink{}

	for _, hp := range homepages {
		canonical, err := canon.Canonical(hp.URL)
		if err != nil {
			plan.MalformedDropped++
			continue
		}
		if existing, ok := latestByPackageID[hp.PackageID]; ok && !hp.UpdatedAt.After(existing.updatedAt) {
			continue
		}
		latestByPackageID[hp.PackageID] = pendingLink{packageID: hp.PackageID, url: canonical, updatedAt: hp.UpdatedAt}
	}

	pending := make([]pendingLink, 0, len(latestByPackageID))
	for _, p := range latestByPackageID {
		pending = append(pending, p)
		if _, known := canonIDByURL[p.url]; known {
			continue
		}
		newCanonURLs[p.url] = struct{}{}
	}

	newURLs := make([]string, 0, len(newCanonURLs))
	for u := range newCanonURLs {
		newURLs = append(newURLs, u)
	}
	sort.Strings(newURLs)
	for _, u := range newURLs {
		plan.NewCanons = append(plan.NewCanons, core.Canon{URL: u, Name: deriveCanonName(u)})
	}

	sort.Slice(pending, func(i, j int) bool { return pending[i].packageID < pending[j].packageID })
	plan.canonicalURLByPackageID = make(map[string]string, len(pending))
	for _, p := range pending {
		canonID := canonIDByURL[p.url]
		plan.CanonPackages = append(plan.CanonPackages, core.CanonPackage{
			CanonID:   canonID, // empty for a brand-new canon; Apply resolves it after insert.
			PackageID: p.packageID,
		})
		plan.canonicalURLByPackageID[p.packageID] = p.url
	}

	return plan
}

// deriveCanonName picks a human-readable project name from a canonical
// homepage URL when no better source is available: the last non-empty
// path segment, falling back to the bare host (§9 Open Question,
// resolved in DESIGN.md).
func deriveCanonName(canonicalURL string) string {
	parsed, err := url.Parse(canonicalURL)
	if err != nil {
		return canonicalURL
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return parsed.Host
}

// Apply inserts any new canons, re-resolves their ids, and upserts the
// desired package->canon links. Called only when the LOAD config flag is
// true; with LOAD=false the caller logs Plan without calling Apply (§4.9,
// §6).
func Apply(ctx context.Context, store core.CanonStore, plan Plan) error {
	if store == nil {
		return fmt.Errorf("dedupe: nil store")
	}

	insertedCanons, err := store.UpsertCanons(ctx, plan.NewCanons)
	if err != nil {
		return fmt.Errorf("dedupe: upsert canons: %w", err)
	}
	canonIDByURL := make(map[string]string, len(insertedCanons))
	for _, c := range insertedCanons {
		canonIDByURL[c.URL] = c.ID
	}

	links := make([]core.CanonPackage, 0, len(plan.CanonPackages))
	for _, link := range plan.CanonPackages {
		if link.CanonID == "" {
			if u, ok := plan.canonicalURLByPackageID[link.PackageID]; ok {
				link.CanonID = canonIDByURL[u]
			}
		}
		links = append(links, link)
	}

	return store.UpsertCanonPackages(ctx, links)
}

// Run executes one full deduplication pass: read the current state, plan
// the delta, and — only when load is true — apply it. It returns the plan
// either way so callers can log the would-be delta in dry-run mode.
func Run(ctx context.Context, store core.CanonStore, load bool, logger core.Logger) (Plan, error) {
	existing, err := store.ListCanons(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("dedupe: list canons: %w", err)
	}
	homepages, err := store.LatestHomepages(ctx)
	if err != nil {
		return Plan{}, fmt.Errorf("dedupe: latest homepages: %w", err)
	}

	plan := ComputePlan(existing, homepages)

	if !load {
		core.LogRunOutcome(ctx, logger, "dedupe.dry_run", "", nil)
		return plan, nil
	}

	if err := Apply(ctx, store, plan); err != nil {
		core.LogRunOutcome(ctx, logger, "dedupe.apply", "", err)
		return plan, err
	}
	core.LogRunOutcome(ctx, logger, "dedupe.apply", "", nil)
	return plan, nil
}

// RankCanons is the TeaRank stub (§3, §9 Open Question resolution): real
// tea-rank weighting (npm downloads, GitHub stars, etc.) has no defined
// upstream signal anywhere in scope, so this counts, per canon, the number
// of distinct package managers it has a package in — a crude but
// monotonic "how many ecosystems agree this project exists" proxy that
// exercises the TeaRank table end-to-end. It ranks whatever canon_packages
// rows exist; Run does not call it, so callers invoke it separately.
func RankCanons(ctx context.Context, store core.CanonStore, now func() time.Time) error {
	rows, err := store.CanonPackageManagers(ctx)
	if err != nil {
		return fmt.Errorf("dedupe: load canon package managers: %w", err)
	}

	seen := map[string]map[string]struct{}{}
	for _, row := range rows {
		pms, ok := seen[row.CanonID]
		if !ok {
			pms = map[string]struct{}{}
			seen[row.CanonID] = pms
		}
		pms[row.PackageManagerID] = struct{}{}
	}

	canonIDs := make([]string, 0, len(seen))
	for canonID := range seen {
		canonIDs = append(canonIDs, canonID)
	}
	sort.Strings(canonIDs)

	calculatedAt := now()
	ranks := make([]core.TeaRank, 0, len(canonIDs))
	for _, canonID := range canonIDs {
		ranks = append(ranks, core.TeaRank{
			CanonID:      canonID,
			Rank:         float64(len(seen[canonID])),
			CalculatedAt: calculatedAt,
		})
	}

	return store.UpsertTeaRanks(ctx, ranks)
}
