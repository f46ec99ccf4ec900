// Package homebrew parses Homebrew's formulae.json/casks.json API dumps
// into CHAI's normalized package shape. Homebrew is not authoritative for
// deletion (SPEC_FULL.md §4.5): its pipeline is wired with
// Authoritative=false, so packages absent from a dump are left untouched.
package homebrew

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/diff"
)

// formula mirrors the subset of Homebrew's formulae.json API response this
// parser consumes; fields outside this set are ignored by json.Unmarshal.
type formula struct {
	Name                    string   `json:"name"`
	Desc                    string   `json:"desc"`
	Homepage                string   `json:"homepage"`
	Dependencies            []string `json:"dependencies"`
	BuildDependencies       []string `json:"build_dependencies"`
	TestDependencies        []string `json:"test_dependencies"`
	RecommendedDependencies []string `json:"recommended_dependencies"`
	OptionalDependencies    []string `json:"optional_dependencies"`
	UsesFromMacos           []any    `json:"uses_from_macos"`
}

// cask mirrors the subset of Homebrew's casks.json API response this parser
// consumes.
type cask struct {
	Token    string `json:"token"`
	Name     []string
	Desc     string `json:"desc"`
	Homepage string `json:"homepage"`
	URL      string `json:"url"`
}

type Parser struct{}

func (Parser) Parse(ctx context.Context, dir string) ([]diff.NormalizedPackage, error) {
	var out []diff.NormalizedPackage

	formulae, err := readFormulae(filepath.Join(dir, "formulae.json"))
	if err != nil {
		return nil, err
	}
	out = append(out, formulae...)

	casks, err := readCasks(filepath.Join(dir, "casks.json"))
	if err != nil {
		return nil, err
	}
	out = append(out, casks...)

	return out, nil
}

func readFormulae(path string) ([]diff.NormalizedPackage, error) {
	var rows []formula
	if err := decodeJSONFile(path, &rows); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	byName := make(map[string]struct{}, len(rows))
	for _, f := range rows {
		byName[f.Name] = struct{}{}
	}

	out := make([]diff.NormalizedPackage, 0, len(rows))
	for _, f := range rows {
		if f.Name == "" {
			continue
		}
		pkg := diff.NormalizedPackage{ImportID: f.Name, Name: f.Name}
		if f.Desc != "" {
			desc := f.Desc
			pkg.ReadMe = &desc
		}
		if f.Homepage != "" {
			pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: f.Homepage, TypeName: core.URLTypeHomepage})
		}

		for _, group := range []struct {
			names    []string
			typeName string
		}{
			{f.Dependencies, core.DependencyTypeRuntime},
			{f.BuildDependencies, core.DependencyTypeBuild},
			{f.TestDependencies, core.DependencyTypeTest},
			{f.RecommendedDependencies, core.DependencyTypeRecommended},
			{f.OptionalDependencies, core.DependencyTypeOptional},
		} {
			for _, name := range group.names {
				if _, ok := byName[name]; !ok {
					continue
				}
				pkg.Dependencies = append(pkg.Dependencies, diff.NormalizedDependency{
					ImportID: name,
					TypeName: group.typeName,
				})
			}
		}
		if len(f.UsesFromMacos) > 0 {
			for _, raw := range f.UsesFromMacos {
				name := usesFromMacosName(raw)
				if name == "" {
					continue
				}
				if _, ok := byName[name]; !ok {
					continue
				}
				pkg.Dependencies = append(pkg.Dependencies, diff.NormalizedDependency{
					ImportID: name,
					TypeName: core.DependencyTypeUsesFromMacOS,
				})
			}
		}

		out = append(out, pkg)
	}
	return out, nil
}

// usesFromMacosName handles the API's two encodings for a uses_from_macos
// entry: a bare string ("zlib") or a single-key object ({"zlib": "since-catalina"}).
func usesFromMacosName(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		for k := range v {
			return k
		}
	}
	return ""
}

func readCasks(path string) ([]diff.NormalizedPackage, error) {
	var rows []cask
	if err := decodeJSONFile(path, &rows); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	out := make([]diff.NormalizedPackage, 0, len(rows))
	for _, c := range rows {
		if c.Token == "" {
			continue
		}
		name := c.Token
		if len(c.Name) > 0 {
			name = c.Name[0]
		}
		pkg := diff.NormalizedPackage{ImportID: c.Token, Name: name}
		if c.Desc != "" {
			desc := c.Desc
			pkg.ReadMe = &desc
		}
		if c.Homepage != "" {
			pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: c.Homepage, TypeName: core.URLTypeHomepage})
		}
		if c.URL != "" {
			pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: c.URL, TypeName: core.URLTypeSource})
		}
		out = append(out, pkg)
	}
	return out, nil
}

func decodeJSONFile(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("%w: decode %s: %v", core.ErrParse, path, err)
	}
	return nil
}
