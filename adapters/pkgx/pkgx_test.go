package pkgx_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teaxyz/chai/adapters/pkgx"
	"github.com/teaxyz/chai/core"
)

func writeManifest(t *testing.T, root, relDir, content string) {
	t.Helper()
	dir := filepath.Join(root, relDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.yml"), []byte(content), 0o644))
}

func TestParseDerivesImportIDFromPantryPath(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "projects/curl.se", `
homepage: https://curl.se
distributable:
  url: https://curl.se/download/curl.tar.gz
dependencies:
  openssl.org: '^3'
build:
  dependencies:
    cmake.org: '*'
`)

	packages, err := pkgx.Parser{}.Parse(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, packages, 1)

	curl := packages[0]
	assert.Equal(t, "curl.se", curl.ImportID)
	require.Len(t, curl.URLs, 2)

	var sawHomepage, sawSource bool
	for _, u := range curl.URLs {
		if u.TypeName == core.URLTypeHomepage {
			sawHomepage = true
		}
		if u.TypeName == core.URLTypeSource {
			sawSource = true
		}
	}
	assert.True(t, sawHomepage)
	assert.True(t, sawSource)

	require.Len(t, curl.Dependencies, 2)
	byName := map[string]diffDep{}
	for _, d := range curl.Dependencies {
		byName[d.ImportID] = diffDep{typeName: d.TypeName, semver: d.SemverRange}
	}
	require.Contains(t, byName, "openssl.org")
	assert.Equal(t, core.DependencyTypeRuntime, byName["openssl.org"].typeName)
	require.NotNil(t, byName["openssl.org"].semver)
	assert.Equal(t, "^3", *byName["openssl.org"].semver)

	require.Contains(t, byName, "cmake.org")
	assert.Equal(t, core.DependencyTypeBuild, byName["cmake.org"].typeName)
	assert.Nil(t, byName["cmake.org"].semver, "a bare wildcard constraint carries no semver range")
}

type diffDep struct {
	typeName string
	semver   *string
}

func TestParseEmptyPantryProducesEmptySnapshot(t *testing.T) {
	root := t.TempDir()
	packages, err := pkgx.Parser{}.Parse(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, packages)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "projects/broken", "homepage: [unterminated")

	_, err := pkgx.Parser{}.Parse(context.Background(), root)
	require.Error(t, err)
}
