// Package pipeline drives one package manager's fetch -> parse -> diff ->
// ingest cycle (§4.5) as an explicit state machine, the way
// sync/orchestrator.go drives a SyncJob through its own status transitions.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/teaxyz/chai/cache"
	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/diff"
	"github.com/teaxyz/chai/fetch"
)

// Stage names one point in a Pipeline run, matching spec.md §4.5's FSM.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageFetching     Stage = "fetching"
	StageParsing      Stage = "parsing"
	StageLoadingCache Stage = "loading_cache"
	StageDiffing      Stage = "diffing"
	StageIngesting    Stage = "ingesting"
	StageDeleting     Stage = "deleting"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// stageTransitionAllowed mirrors core.syncJobTransitionAllowed's shape: a
// map of allowed next stages per current stage. FAILED is accepted from any
// stage (handled separately in transitionTo) rather than listed here.
var stageTransitionAllowed = map[Stage]map[Stage]struct{}{
	StageIdle:         {StageFetching: {}},
	StageFetching:     {StageParsing: {}, StageLoadingCache: {}},
	StageParsing:      {StageLoadingCache: {}, StageDiffing: {}},
	StageLoadingCache: {StageDiffing: {}},
	StageDiffing:      {StageIngesting: {}},
	StageIngesting:    {StageDeleting: {}, StageDone: {}},
	StageDeleting:     {StageDone: {}},
	StageDone:         {},
	StageFailed:       {},
}

var errInvalidStageTransition = fmt.Errorf("pipeline: invalid stage transition")

// Parser converts the files under a fetched (or fixture) directory into the
// common snapshot shape the Diff engine consumes (§4.1/§4.7). Parsers never
// touch the Store.
type Parser interface {
	Parse(ctx context.Context, dir string) ([]diff.NormalizedPackage, error)
}

// Result summarizes one completed run.
type Result struct {
	Stage     Stage
	Delta     core.IngestDelta
	Deleted   []string
	Warnings  []core.Warning
	SourceDir string
}

// Pipeline wires one package manager's Fetcher + Parser pair against the
// shared Store, per §4.5.
type Pipeline struct {
	// Name is the package manager's identifying name ("crates", "homebrew",
	// "debian", "pkgx").
	Name string
	// Authoritative pipelines (crates, pkgx) call diff.DeletedImportIDs and
	// delete packages missing from the snapshot; homebrew and debian do
	// not (§4.5, §4.7).
	Authoritative bool

	Fetcher fetch.Fetcher
	Parser  Parser
	Store   core.Store
	Logger  core.Logger

	// Config is resolved once at construction and never re-read mid-run,
	// per §9's "global configuration" note.
	Config core.Config
	// FetchSpec names the upstream source this pipeline fetches from.
	FetchSpec fetch.Spec
	// FixtureDir is used in place of a live fetch when Config.Test is set.
	FixtureDir string

	stage Stage
}

func New(name string, authoritative bool, fetcher fetch.Fetcher, parser Parser, store core.Store, cfg core.Config, spec fetch.Spec) *Pipeline {
	return &Pipeline{
		Name:          name,
		Authoritative: authoritative,
		Fetcher:       fetcher,
		Parser:        parser,
		Store:         store,
		Config:        cfg,
		FetchSpec:     spec,
		stage:         StageIdle,
	}
}

// Stage reports the pipeline's current stage; after a failed run it reports
// StageFailed until the next Run starts.
func (p *Pipeline) Stage() Stage {
	if p == nil {
		return StageIdle
	}
	return p.stage
}

func (p *Pipeline) transitionTo(next Stage) error {
	if p.stage == next {
		return nil
	}
	if next != StageFailed {
		if _, ok := stageTransitionAllowed[p.stage][next]; !ok {
			return fmt.Errorf("%w: %s -> %s", errInvalidStageTransition, p.stage, next)
		}
	}
	p.stage = next
	return nil
}

// Run executes one fetch/parse/diff/ingest cycle to completion or failure.
// Cache load overlaps Fetch+Parse via an errgroup per §4.5/§5; the two join
// before Diff runs.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	if p == nil {
		return Result{}, fmt.Errorf("pipeline: nil pipeline")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", core.ErrCancellationRequested, err)
	}

	// Each Run starts again from IDLE, so the Done or Failed stage of a
	// previous run (the Scheduler re-fires the same Pipeline) does not block
	// the transition to FETCHING.
	p.stage = StageIdle

	pm, err := p.Store.EnsurePackageManager(ctx, p.Name)
	if err != nil {
		p.transitionTo(StageFailed)
		return Result{}, err
	}

	if err := p.transitionTo(StageFetching); err != nil {
		return Result{}, err
	}

	group, gctx := errgroup.WithContext(ctx)
	var (
		snapshot  []diff.NormalizedPackage
		sourceDir string
		current   *cache.Cache
	)

	group.Go(func() error {
		dir, err := p.resolveSourceDir(gctx)
		if err != nil {
			return err
		}
		sourceDir = dir

		if err := p.transitionTo(StageParsing); err != nil {
			return err
		}
		parsed, err := p.Parser.Parse(gctx, dir)
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrParse, err)
		}
		snapshot = parsed
		return nil
	})
	group.Go(func() error {
		loaded, err := cache.Load(gctx, p.Store, pm.ID)
		if err != nil {
			return err
		}
		current = loaded
		return nil
	})

	if err := group.Wait(); err != nil {
		p.transitionTo(StageFailed)
		return Result{}, err
	}

	if err := p.transitionTo(StageLoadingCache); err != nil {
		return Result{}, err
	}
	if err := p.transitionTo(StageDiffing); err != nil {
		return Result{}, err
	}
	computed := diff.Compute(current, p.Name, snapshot)
	for _, w := range computed.Warnings {
		core.LogWarning(ctx, p.Logger, "pipeline."+p.Name, w)
	}

	if err := p.transitionTo(StageIngesting); err != nil {
		return Result{}, err
	}
	ingestErr := p.Store.Ingest(ctx, pm.ID, computed.Delta)
	core.LogRunOutcome(ctx, p.Logger, "pipeline."+p.Name+".ingest", p.Name, ingestErr)
	if ingestErr != nil {
		p.transitionTo(StageFailed)
		return Result{}, ingestErr
	}

	var deleted []string
	if p.Authoritative {
		if err := p.transitionTo(StageDeleting); err != nil {
			return Result{}, err
		}
		deleted = diff.DeletedImportIDs(current, snapshot)
		if len(deleted) > 0 {
			if err := p.Store.DeletePackagesByImportID(ctx, pm.ID, deleted); err != nil {
				p.transitionTo(StageFailed)
				return Result{}, err
			}
		}
	}

	if err := p.transitionTo(StageDone); err != nil {
		return Result{}, err
	}

	if p.Config.NoCache && !p.Config.Test {
		if err := fetch.CleanupSnapshot(sourceDir); err != nil && p.Logger != nil {
			p.Logger.Warn(fmt.Sprintf("pipeline: cleanup snapshot %s: %v", sourceDir, err))
		}
	}

	return Result{
		Stage:     StageDone,
		Delta:     computed.Delta,
		Deleted:   deleted,
		Warnings:  computed.Warnings,
		SourceDir: sourceDir,
	}, nil
}

// resolveSourceDir implements the FETCH/TEST flag semantics from §6: TEST
// substitutes a fixture directory and never touches the network; FETCH=false
// reuses the last successful fetch via the "latest" symlink instead of
// fetching again.
func (p *Pipeline) resolveSourceDir(ctx context.Context) (string, error) {
	if p.Config.Test {
		if p.FixtureDir == "" {
			return "", fmt.Errorf("pipeline: TEST mode requires a FixtureDir")
		}
		return p.FixtureDir, nil
	}
	if !p.Config.Fetch {
		return filepath.Join(p.Config.DataRoot, p.Name, "latest"), nil
	}

	dir, err := p.Fetcher.Fetch(ctx, p.Config.DataRoot, p.Name, p.FetchSpec)
	if err != nil {
		return "", err
	}
	if err := fetch.PromoteLatest(p.Config.DataRoot, p.Name, dir); err != nil {
		return "", err
	}
	return dir, nil
}
