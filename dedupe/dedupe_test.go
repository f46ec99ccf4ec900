package dedupe_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/dedupe"
)

type fakeCanonStore struct {
	canons            []core.Canon
	homepages         []core.PackageHomepage
	canonPackageRows  []core.CanonPackageManagerRow
	upsertedCanons    []core.Canon
	upsertedLinks     []core.CanonPackage
	upsertedRanks     []core.TeaRank
	nextCanonID       int
}

func (s *fakeCanonStore) ListCanons(ctx context.Context) ([]core.Canon, error) {
	return s.canons, nil
}

func (s *fakeCanonStore) LatestHomepages(ctx context.Context) ([]core.PackageHomepage, error) {
	return s.homepages, nil
}

func (s *fakeCanonStore) UpsertCanons(ctx context.Context, canons []core.Canon) ([]core.Canon, error) {
	out := make([]core.Canon, 0, len(canons))
	for _, c := range canons {
		s.nextCanonID++
		c.ID = fmt.Sprintf("canon-%d", s.nextCanonID)
		out = append(out, c)
	}
	s.upsertedCanons = append(s.upsertedCanons, out...)
	return out, nil
}

func (s *fakeCanonStore) UpsertCanonPackages(ctx context.Context, links []core.CanonPackage) error {
	s.upsertedLinks = append(s.upsertedLinks, links...)
	return nil
}

func (s *fakeCanonStore) UpsertTeaRanks(ctx context.Context, ranks []core.TeaRank) error {
	s.upsertedRanks = append(s.upsertedRanks, ranks...)
	return nil
}

func (s *fakeCanonStore) CanonPackageManagers(ctx context.Context) ([]core.CanonPackageManagerRow, error) {
	return s.canonPackageRows, nil
}

var _ core.CanonStore = (*fakeCanonStore)(nil)

func TestComputePlanCreatesCanonForNewHomepage(t *testing.T) {
	plan := dedupe.ComputePlan(nil, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "https://serde.rs/", UpdatedAt: time.Now()},
	})

	require.Len(t, plan.NewCanons, 1)
	assert.Equal(t, "https://serde.rs", plan.NewCanons[0].URL, "homepage must be canonicalized before entering the plan")
	require.Len(t, plan.CanonPackages, 1)
	assert.Equal(t, "pkg-1", plan.CanonPackages[0].PackageID)
	assert.Empty(t, plan.CanonPackages[0].CanonID, "a brand-new canon has no id until Apply inserts it")
}

func TestComputePlanReusesExistingCanon(t *testing.T) {
	existing := []core.Canon{{ID: "canon-1", URL: "https://serde.rs", Name: "serde"}}
	plan := dedupe.ComputePlan(existing, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "https://serde.rs", UpdatedAt: time.Now()},
	})

	assert.Empty(t, plan.NewCanons)
	require.Len(t, plan.CanonPackages, 1)
	assert.Equal(t, "canon-1", plan.CanonPackages[0].CanonID)
}

func TestComputePlanDropsMalformedHomepage(t *testing.T) {
	plan := dedupe.ComputePlan(nil, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "ftp://bad.example", UpdatedAt: time.Now()},
	})
	assert.Empty(t, plan.NewCanons)
	assert.Empty(t, plan.CanonPackages)
	assert.Equal(t, 1, plan.MalformedDropped)
}

func TestComputePlanPicksMostRecentHomepageWhenPackageHasTwo(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	// A package's upstream homepage changed; package_urls links are
	// append-only, so both the old and new homepage rows are still present.
	plan := dedupe.ComputePlan(nil, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "https://old.example", UpdatedAt: older},
		{PackageID: "pkg-1", URL: "https://new.example", UpdatedAt: newer},
	})

	require.Len(t, plan.CanonPackages, 1, "a package must never produce two canon links")
	require.Len(t, plan.NewCanons, 1)
	assert.Equal(t, "https://new.example", plan.NewCanons[0].URL, "the most recently updated homepage must win")
}

func TestComputePlanPicksMostRecentHomepageRegardlessOfInputOrder(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	plan := dedupe.ComputePlan(nil, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "https://new.example", UpdatedAt: newer},
		{PackageID: "pkg-1", URL: "https://old.example", UpdatedAt: older},
	})

	require.Len(t, plan.CanonPackages, 1)
	require.Len(t, plan.NewCanons, 1)
	assert.Equal(t, "https://new.example", plan.NewCanons[0].URL)
}

func TestApplyResolvesCanonIDForBrandNewCanon(t *testing.T) {
	store := &fakeCanonStore{}
	plan := dedupe.ComputePlan(nil, []core.PackageHomepage{
		{PackageID: "pkg-1", URL: "https://serde.rs/", UpdatedAt: time.Now()},
	})

	require.NoError(t, dedupe.Apply(context.Background(), store, plan))
	require.Len(t, store.upsertedLinks, 1)
	assert.NotEmpty(t, store.upsertedLinks[0].CanonID)
}

func TestRunDryRunNeverWrites(t *testing.T) {
	store := &fakeCanonStore{}
	plan, err := dedupe.Run(context.Background(), store, false, nil)
	require.NoError(t, err)
	assert.Empty(t, store.upsertedCanons)
	assert.Empty(t, store.upsertedLinks)
	_ = plan
}

func TestRunLoadTrueApplies(t *testing.T) {
	store := &fakeCanonStore{
		homepages: []core.PackageHomepage{{PackageID: "pkg-1", URL: "https://serde.rs/", UpdatedAt: time.Now()}},
	}
	_, err := dedupe.Run(context.Background(), store, true, nil)
	require.NoError(t, err)
	assert.Len(t, store.upsertedCanons, 1)
	assert.Len(t, store.upsertedLinks, 1)
}

func TestRankCanonsCountsDistinctPackageManagers(t *testing.T) {
	store := &fakeCanonStore{
		canonPackageRows: []core.CanonPackageManagerRow{
			{CanonID: "canon-1", PackageManagerID: "pm-crates"},
			{CanonID: "canon-1", PackageManagerID: "pm-homebrew"},
			{CanonID: "canon-1", PackageManagerID: "pm-crates"},
			{CanonID: "canon-2", PackageManagerID: "pm-debian"},
		},
	}
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	err := dedupe.RankCanons(context.Background(), store, func() time.Time { return fixed })
	require.NoError(t, err)
	require.Len(t, store.upsertedRanks, 2)

	byCanon := map[string]float64{}
	for _, r := range store.upsertedRanks {
		byCanon[r.CanonID] = r.Rank
		assert.Equal(t, fixed, r.CalculatedAt)
	}
	assert.Equal(t, float64(2), byCanon["canon-1"])
	assert.Equal(t, float64(1), byCanon["canon-2"])
}
