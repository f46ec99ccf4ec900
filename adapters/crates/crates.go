// Package crates parses a crates.io database dump export into CHAI's
// normalized package shape. crates.io is authoritative for deletion
// (SPEC_FULL.md §4.5): its pipeline is wired with Authoritative=true.
package crates

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/diff"
)

// Dependency kind values as crates.io's dump encodes them.
const (
	kindNormal = "normal"
	kindBuild  = "build"
	kindDev    = "dev"
)

var kindToDependencyType = map[string]string{
	kindNormal: core.DependencyTypeRuntime,
	kindBuild:  core.DependencyTypeBuild,
	kindDev:    core.DependencyTypeTest,
}

// Parser reads crates.csv and dependencies.csv from a crates.io DB dump
// directory. No pack library wraps crates.io's dump format, and no pack
// CSV library was found either, so this is the stdlib `encoding/csv`
// carve-out SPEC_FULL.md §4.7 calls out.
type Parser struct{}

type crateRow struct {
	importID      string
	name          string
	homepage      string
	documentation string
	repository    string
	readMe        string
}

func (Parser) Parse(ctx context.Context, dir string) ([]diff.NormalizedPackage, error) {
	crateByID, order, err := readCrates(filepath.Join(dir, "crates.csv"))
	if err != nil {
		return nil, err
	}

	packages := make(map[string]*diff.NormalizedPackage, len(crateByID))
	out := make([]diff.NormalizedPackage, 0, len(order))
	for _, id := range order {
		row := crateByID[id]
		pkg := diff.NormalizedPackage{ImportID: row.importID, Name: row.name}
		if row.readMe != "" {
			readMe := row.readMe
			pkg.ReadMe = &readMe
		}
		for _, u := range []struct {
			value    string
			typeName string
		}{
			{row.homepage, core.URLTypeHomepage},
			{row.documentation, core.URLTypeDocumentation},
			{row.repository, core.URLTypeRepository},
		} {
			if strings.TrimSpace(u.value) == "" {
				continue
			}
			pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: u.value, TypeName: u.typeName})
		}
		out = append(out, pkg)
		packages[id] = &out[len(out)-1]
	}

	if err := readDependencies(filepath.Join(dir, "dependencies.csv"), crateByID, packages); err != nil {
		return nil, err
	}

	return out, nil
}

func readCrates(path string) (map[string]crateRow, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", core.ErrParse, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read crates.csv header: %v", core.ErrParse, err)
	}
	idx := columnIndex(header)

	rows := map[string]crateRow{}
	var order []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read crates.csv row: %v", core.ErrParse, err)
		}
		id := field(record, idx, "id")
		name := field(record, idx, "name")
		if id == "" || name == "" {
			continue
		}
		rows[id] = crateRow{
			importID:      name,
			name:          name,
			homepage:      field(record, idx, "homepage"),
			documentation: field(record, idx, "documentation"),
			repository:    field(record, idx, "repository"),
			readMe:        field(record, idx, "readme"),
		}
		order = append(order, id)
	}
	return rows, order, nil
}

func readDependencies(path string, crateByID map[string]crateRow, packages map[string]*diff.NormalizedPackage) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: open %s: %v", core.ErrParse, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("%w: read dependencies.csv header: %v", core.ErrParse, err)
	}
	idx := columnIndex(header)

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: read dependencies.csv row: %v", core.ErrParse, err)
		}
		crateID := field(record, idx, "crate_id")
		depID := field(record, idx, "dependency_id")
		kind := field(record, idx, "kind")
		req := field(record, idx, "req")

		pkg, ok := packages[crateID]
		if !ok {
			continue
		}
		depCrate, ok := crateByID[depID]
		if !ok {
			continue
		}

		typeName, ok := kindToDependencyType[strings.ToLower(kind)]
		if !ok {
			typeName = core.DependencyTypeOptional
		}

		dep := diff.NormalizedDependency{ImportID: depCrate.importID, TypeName: typeName}
		if strings.TrimSpace(req) != "" {
			semver := req
			dep.SemverRange = &semver
		}
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}
	return nil
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(strings.ToLower(name))] = i
	}
	return idx
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
