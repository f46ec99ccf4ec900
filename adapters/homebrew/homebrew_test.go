package homebrew_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaxyz/chai/adapters/homebrew"
	"github.com/teaxyz/chai/core"
)

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestParseFormulaeMapsDependencyGroupsToTypes(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "formulae.json", `[
		{"name": "git", "desc": "distributed vcs", "homepage": "https://git-scm.com",
		 "dependencies": ["pcre2"], "build_dependencies": ["pkg-config"],
		 "test_dependencies": ["bats"], "recommended_dependencies": ["gettext"],
		 "optional_dependencies": ["tk"], "uses_from_macos": ["zlib", {"expat": "since-catalina"}]},
		{"name": "pcre2"}, {"name": "pkg-config"}, {"name": "bats"},
		{"name": "gettext"}, {"name": "tk"}, {"name": "zlib"}, {"name": "expat"}
	]`)

	packages, err := homebrew.Parser{}.Parse(context.Background(), dir)
	require.NoError(t, err)

	var found bool
	for _, pkg := range packages {
		if pkg.ImportID != "git" {
			continue
		}
		found = true
		require.NotNil(t, pkg.ReadMe)
		assert.Equal(t, "distributed vcs", *pkg.ReadMe)
		require.Len(t, pkg.URLs, 1)
		assert.Equal(t, core.URLTypeHomepage, pkg.URLs[0].TypeName)

		byType := map[string]string{}
		for _, d := range pkg.Dependencies {
			byType[d.ImportID] = d.TypeName
		}
		assert.Equal(t, core.DependencyTypeRuntime, byType["pcre2"])
		assert.Equal(t, core.DependencyTypeBuild, byType["pkg-config"])
		assert.Equal(t, core.DependencyTypeTest, byType["bats"])
		assert.Equal(t, core.DependencyTypeRecommended, byType["gettext"])
		assert.Equal(t, core.DependencyTypeOptional, byType["tk"])
		assert.Equal(t, core.DependencyTypeUsesFromMacOS, byType["zlib"])
		assert.Equal(t, core.DependencyTypeUsesFromMacOS, byType["expat"])
	}
	assert.True(t, found, "git formula must be present")
}

func TestParseFormulaeDropsDependencyOnUnknownFormula(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "formulae.json", `[{"name": "git", "dependencies": ["ghost"]}]`)

	packages, err := homebrew.Parser{}.Parse(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, packages, 1)
	assert.Empty(t, packages[0].Dependencies)
}

func TestParseCasksUseTokenAsImportIDAndCaptureSourceURL(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "casks.json", `[
		{"token": "firefox", "name": ["Firefox"], "desc": "web browser",
		 "homepage": "https://www.mozilla.org/firefox/", "url": "https://download.mozilla.org/firefox.dmg"}
	]`)

	packages, err := homebrew.Parser{}.Parse(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, packages, 1)

	cask := packages[0]
	assert.Equal(t, "firefox", cask.ImportID)
	assert.Equal(t, "Firefox", cask.Name)
	require.Len(t, cask.URLs, 2)

	var sawHomepage, sawSource bool
	for _, u := range cask.URLs {
		switch u.TypeName {
		case core.URLTypeHomepage:
			sawHomepage = true
		case core.URLTypeSource:
			sawSource = true
		}
	}
	assert.True(t, sawHomepage)
	assert.True(t, sawSource)
}

func TestParseMissingFilesProducesEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	packages, err := homebrew.Parser{}.Parse(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, packages)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "formulae.json", `not json`)

	_, err := homebrew.Parser{}.Parse(context.Background(), dir)
	require.Error(t, err)
}
