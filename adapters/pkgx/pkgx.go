// Package pkgx parses a cloned pkgx pantry into CHAI's normalized package
// shape: one NormalizedPackage per package.yml found under the pantry root.
// pkgx is authoritative for deletion (SPEC_FULL.md §4.5): its pipeline is
// wired Authoritative=true and paired with fetch.GitCloneFetcher.
package pkgx

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/diff"
)

const manifestName = "package.yml"

// manifest mirrors the subset of a pantry package.yml this parser consumes.
type manifest struct {
	Homepage     string            `yaml:"homepage"`
	Distributable struct {
		URL string `yaml:"url"`
	} `yaml:"distributable"`
	Dependencies map[string]string `yaml:"dependencies"`
	Companions   map[string]string `yaml:"companions"`
	Build        struct {
		Dependencies map[string]string `yaml:"dependencies"`
	} `yaml:"build"`
	Test struct {
		Dependencies map[string]string `yaml:"dependencies"`
	} `yaml:"test"`
}

type Parser struct{}

func (Parser) Parse(ctx context.Context, dir string) ([]diff.NormalizedPackage, error) {
	var manifestPaths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == manifestName {
			manifestPaths = append(manifestPaths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walk pantry %s: %v", core.ErrParse, dir, err)
	}
	sort.Strings(manifestPaths)

	out := make([]diff.NormalizedPackage, 0, len(manifestPaths))
	for _, path := range manifestPaths {
		importID := importIDFromPath(dir, path)
		if importID == "" {
			continue
		}
		pkg, err := parseManifest(path, importID)
		if err != nil {
			return nil, err
		}
		out = append(out, pkg)
	}
	return out, nil
}

// importIDFromPath derives a pantry package's import id from its directory
// path relative to the pantry root, e.g. ".../pantry/projects/curl.se/package.yml"
// yields "curl.se" — pkgx's own domain-style naming convention.
func importIDFromPath(root, manifestPath string) string {
	rel, err := filepath.Rel(root, filepath.Dir(manifestPath))
	if err != nil {
		return ""
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "projects/")
	return rel
}

func parseManifest(path, importID string) (diff.NormalizedPackage, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return diff.NormalizedPackage{}, fmt.Errorf("%w: read %s: %v", core.ErrParse, path, err)
	}

	var m manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return diff.NormalizedPackage{}, fmt.Errorf("%w: parse %s: %v", core.ErrParse, path, err)
	}

	pkg := diff.NormalizedPackage{ImportID: importID, Name: importID}
	if m.Homepage != "" {
		pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: m.Homepage, TypeName: core.URLTypeHomepage})
	}
	if m.Distributable.URL != "" {
		pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: m.Distributable.URL, TypeName: core.URLTypeSource})
	}

	for _, group := range []struct {
		deps     map[string]string
		typeName string
	}{
		{m.Dependencies, core.DependencyTypeRuntime},
		{m.Build.Dependencies, core.DependencyTypeBuild},
		{m.Test.Dependencies, core.DependencyTypeTest},
		{m.Companions, core.DependencyTypeRecommended},
	} {
		names := make([]string, 0, len(group.deps))
		for name := range group.deps {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dep := diff.NormalizedDependency{ImportID: name, TypeName: group.typeName}
			if req := strings.TrimSpace(group.deps[name]); req != "" && req != "*" {
				semver := req
				dep.SemverRange = &semver
			}
			pkg.Dependencies = append(pkg.Dependencies, dep)
		}
	}

	return pkg, nil
}
