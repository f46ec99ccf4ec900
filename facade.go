// Package chai is the composition root an external caller wires up to run
// CHAI: build a Facade from a resolved Config and a database handle, then
// drive its Pipelines and Scheduler. Grounded on the teacher's facade.go,
// which plays the same role for its command/query service — a single
// constructor that assembles every concrete dependency once and hands back
// a small set of ready-to-use entry points, rather than leaving callers to
// wire store/fetcher/parser/pipeline by hand.
package chai

import (
	"fmt"
	"net/http"

	"github.com/uptrace/bun"

	"github.com/teaxyz/chai/adapters/crates"
	"github.com/teaxyz/chai/adapters/debian"
	"github.com/teaxyz/chai/adapters/homebrew"
	"github.com/teaxyz/chai/adapters/pkgx"
	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/fetch"
	"github.com/teaxyz/chai/pipeline"
	"github.com/teaxyz/chai/scheduler"
	"github.com/teaxyz/chai/store/sqlstore"
)

// packageManagers lists the adapters this repo ships, in the order
// Facade.Pipelines returns them. pkgx and crates are authoritative for
// deletion (§4.5/§4.7); homebrew and debian are not, since neither's
// snapshot format enumerates every package it has ever listed.
var packageManagers = []string{"crates", "homebrew", "debian", "pkgx"}

// Facade is the single object a caller needs to run every CHAI pipeline and
// the scheduler that drives them, built once from a resolved Config.
type Facade struct {
	store     *sqlstore.Store
	logger    core.Logger
	config    core.Config
	pipelines map[string]*pipeline.Pipeline
}

// FacadeOption customizes Facade construction beyond Config + *bun.DB,
// matching the teacher's FacadeOption/facadeOptions pattern.
type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	logger     core.Logger
	httpClient *http.Client
}

// WithLogger supplies the core.Logger every Pipeline and the Scheduler log
// through. Defaults to nil (no-op logging) when omitted.
func WithLogger(logger core.Logger) FacadeOption {
	return func(o *facadeOptions) { o.logger = logger }
}

// WithHTTPClient overrides the *http.Client the tarball/gzip fetchers use,
// e.g. to set a custom timeout or transport in tests.
func WithHTTPClient(client *http.Client) FacadeOption {
	return func(o *facadeOptions) { o.httpClient = client }
}

// NewFacade wires a Store on top of db, a Fetcher+Parser pair per package
// manager from cfg.Sources, and one Pipeline per pair. It performs no I/O
// beyond what sqlstore.New needs to validate db.
func NewFacade(cfg core.Config, db *bun.DB, opts ...FacadeOption) (*Facade, error) {
	if db == nil {
		return nil, fmt.Errorf("chai: db is required")
	}

	options := facadeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	httpClient := options.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	store, err := sqlstore.New(db)
	if err != nil {
		return nil, fmt.Errorf("chai: build store: %w", err)
	}

	f := &Facade{
		store:     store,
		logger:    options.logger,
		config:    cfg,
		pipelines: make(map[string]*pipeline.Pipeline, len(packageManagers)),
	}

	for _, name := range packageManagers {
		fetcher, parser, authoritative, err := f.buildAdapter(name, httpClient, cfg)
		if err != nil {
			return nil, err
		}
		spec := fetch.Spec{URL: cfg.Sources[name], Kind: fetchKind(name)}
		p := pipeline.New(name, authoritative, fetcher, parser, store, cfg, spec)
		p.Logger = options.logger
		f.pipelines[name] = p
	}

	return f, nil
}

// buildAdapter returns the Fetcher/Parser pair and authoritativeness for
// one package manager name (§4, §9 of SPEC_FULL.md).
func (f *Facade) buildAdapter(name string, httpClient *http.Client, cfg core.Config) (fetch.Fetcher, pipeline.Parser, bool, error) {
	switch name {
	case "crates":
		// crates.io publishes its DB dump as a single tarball containing
		// crates.csv + dependencies.csv.
		return fetch.TarballFetcher{Client: httpClient}, crates.Parser{}, true, nil
	case "homebrew":
		// Mirrored as a tarball containing both formulae.json and
		// casks.json, since Homebrew's live API serves them as two
		// separate endpoints and Spec names only one URL.
		return fetch.TarballFetcher{Client: httpClient}, homebrew.Parser{}, false, nil
	case "debian":
		// Same reasoning as homebrew: Packages and Sources are mirrored
		// together into one tarball per archive.
		return fetch.TarballFetcher{Client: httpClient}, debian.Parser{}, false, nil
	case "pkgx":
		return fetch.GitCloneFetcher{}, pkgx.Parser{}, true, nil
	default:
		return nil, nil, false, fmt.Errorf("chai: unknown package manager %q", name)
	}
}

func fetchKind(name string) fetch.Kind {
	if name == "pkgx" {
		return fetch.KindGitClone
	}
	return fetch.KindTarball
}

// Pipeline returns the named package manager's Pipeline, or nil if name
// isn't one this Facade built.
func (f *Facade) Pipeline(name string) *pipeline.Pipeline {
	if f == nil {
		return nil
	}
	return f.pipelines[name]
}

// Pipelines returns every Pipeline this Facade built, in packageManagers
// order, ready to pass to scheduler.New as Entries.
func (f *Facade) Pipelines() []*pipeline.Pipeline {
	if f == nil {
		return nil
	}
	out := make([]*pipeline.Pipeline, 0, len(packageManagers))
	for _, name := range packageManagers {
		if p, ok := f.pipelines[name]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Scheduler builds a Scheduler running one Entry per Pipeline at
// cfg.FrequencyHours, the way a caller would compose §4.8 on top of this
// Facade's pipelines.
func (f *Facade) Scheduler() *scheduler.Scheduler {
	if f == nil {
		return nil
	}
	entries := make([]scheduler.Entry, 0, len(f.pipelines))
	for _, name := range packageManagers {
		p, ok := f.pipelines[name]
		if !ok {
			continue
		}
		entries = append(entries, scheduler.Entry{
			Name:      name,
			Pipeline:  p,
			Frequency: core.FrequencyDuration(f.config.FrequencyHours),
		})
	}
	return scheduler.New(f.logger, entries...)
}

// Store exposes the underlying core.Store, e.g. for a caller running the
// Deduplicator against it directly.
func (f *Facade) Store() core.Store {
	if f == nil {
		return nil
	}
	return f.store
}
