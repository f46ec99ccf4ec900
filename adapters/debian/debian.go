// Package debian parses Debian's RFC 2822-style Packages/Sources control
// files into CHAI's normalized package shape. Debian is not authoritative
// for deletion (SPEC_FULL.md §4.5): its pipeline is wired with
// Authoritative=false.
package debian

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/diff"
)

var dependencyNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9+.-]*`)

type dependencyField struct {
	header   string
	typeName string
}

// Control-file fields that carry dependency lists, ordered highest priority
// first so a package named in more than one field keeps its highest rank
// (§3 dependency-type priority).
var dependencyFields = []dependencyField{
	{"Depends", core.DependencyTypeRuntime},
	{"Build-Depends", core.DependencyTypeBuild},
	{"Recommends", core.DependencyTypeRecommended},
	{"Suggests", core.DependencyTypeOptional},
}

type Parser struct{}

func (Parser) Parse(ctx context.Context, dir string) ([]diff.NormalizedPackage, error) {
	var out []diff.NormalizedPackage

	for _, name := range []string{"Packages", "Sources"} {
		packages, err := parseControlFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, packages...)
	}

	return out, nil
}

func parseControlFile(path string) ([]diff.NormalizedPackage, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", core.ErrParse, path, err)
	}
	defer f.Close()

	var out []diff.NormalizedPackage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var paragraph bytes.Buffer
	flush := func() error {
		if paragraph.Len() == 0 {
			return nil
		}
		pkg, ok, err := parseParagraph(paragraph.Bytes())
		paragraph.Reset()
		if err != nil {
			return fmt.Errorf("%w: parse %s paragraph: %v", core.ErrParse, path, err)
		}
		if ok {
			out = append(out, pkg)
		}
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if err := flush(); err != nil {
				return nil, err
			}
			continue
		}
		paragraph.WriteString(line)
		paragraph.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan %s: %v", core.ErrParse, path, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}

// parseParagraph reads one RFC 2822-style stanza via textproto.ReadMIMEHeader,
// the same idiom used to read a control-file-shaped response header
// elsewhere in the corpus.
func parseParagraph(raw []byte) (diff.NormalizedPackage, bool, error) {
	tp := textproto.NewReader(bufio.NewReader(io.MultiReader(bytes.NewReader(raw), strings.NewReader("\r\n\r\n"))))
	header, err := tp.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return diff.NormalizedPackage{}, false, err
	}

	name := header.Get("Package")
	if name == "" {
		name = header.Get("Source")
	}
	if name == "" {
		return diff.NormalizedPackage{}, false, nil
	}

	pkg := diff.NormalizedPackage{ImportID: name, Name: name}
	if desc := strings.TrimSpace(header.Get("Description")); desc != "" {
		pkg.ReadMe = &desc
	}
	if homepage := header.Get("Homepage"); homepage != "" {
		pkg.URLs = append(pkg.URLs, diff.NormalizedURL{Value: homepage, TypeName: core.URLTypeHomepage})
	}

	seen := map[string]struct{}{}
	for _, field := range dependencyFields {
		for _, depName := range splitDependencyList(header.Get(field.header)) {
			if _, dup := seen[depName]; dup {
				continue
			}
			seen[depName] = struct{}{}
			pkg.Dependencies = append(pkg.Dependencies, diff.NormalizedDependency{
				ImportID: depName,
				TypeName: field.typeName,
			})
		}
	}

	return pkg, true, nil
}

// splitDependencyList extracts package names from a control-file dependency
// field, e.g. "libc6 (>= 2.15), libssl3 (>= 3.0.0) | libssl1.1". Version
// constraints and alternative-dependency groups are collapsed: only the
// first alternative's name is kept, matching §4's "latest upstream
// snapshot, not version history" scope.
func splitDependencyList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var names []string
	for _, entry := range strings.Split(raw, ",") {
		alt := strings.SplitN(entry, "|", 2)[0]
		name := dependencyNamePattern.FindString(strings.TrimSpace(alt))
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}
