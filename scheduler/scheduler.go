// Package scheduler drives pipeline.Pipeline instances on periodic
// intervals, one worker goroutine per pipeline, with a single-flight
// guarantee per pipeline (§4.8). It is grounded on
// core/refresh_runner.go's MemoryConnectionLocker: the same TryLock-guarded
// single-holder-at-a-time pattern, generalized from "one refresh per
// connection" to "one run per pipeline."
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teaxyz/chai/core"
	"github.com/teaxyz/chai/pipeline"
)

// Runner is the subset of pipeline.Pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// Entry binds one pipeline to its periodic schedule.
type Entry struct {
	Name      string
	Pipeline  Runner
	Frequency time.Duration
}

type entryState struct {
	entry Entry
	mu    sync.Mutex
}

// Scheduler fires every registered Entry once immediately, then (when
// enabled) every Entry.Frequency thereafter, until its context is
// cancelled.
type Scheduler struct {
	entries []*entryState
	logger  core.Logger
}

func New(logger core.Logger, entries ...Entry) *Scheduler {
	states := make([]*entryState, 0, len(entries))
	for _, e := range entries {
		states = append(states, &entryState{entry: e})
	}
	return &Scheduler{entries: states, logger: logger}
}

// Run starts one worker per registered pipeline. Each worker runs its
// pipeline immediately, then — only when enableScheduler is true and the
// entry's Frequency is positive — re-fires on that interval until ctx is
// cancelled. With enableScheduler false, Run performs exactly one pass
// over every pipeline and returns (§6 ENABLE_SCHEDULER semantics).
func (s *Scheduler) Run(ctx context.Context, enableScheduler bool) error {
	if s == nil {
		return fmt.Errorf("scheduler: nil scheduler")
	}
	group, gctx := errgroup.WithContext(ctx)
	for _, state := range s.entries {
		state := state
		group.Go(func() error {
			if !enableScheduler || state.entry.Frequency <= 0 {
				s.fire(gctx, state)
				return nil
			}
			return s.loop(gctx, state)
		})
	}
	return group.Wait()
}

func (s *Scheduler) loop(ctx context.Context, state *entryState) error {
	ticker := time.NewTicker(state.entry.Frequency)
	defer ticker.Stop()
	// The immediate run is asynchronous too, so the ticker counts from
	// start-up rather than from the end of the first run, and ticks that
	// land while it is still in flight are dropped by fire's TryLock.
	go s.fire(ctx, state)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Fire asynchronously so a long-running pipeline never delays
			// the ticker; TryLock below drops any tick that lands while the
			// previous run is still in flight (§4.8: "dropped, not queued").
			go s.fire(ctx, state)
		}
	}
}

// fire attempts one run of state's pipeline, skipping silently if a run is
// already in flight.
func (s *Scheduler) fire(ctx context.Context, state *entryState) {
	if !state.mu.TryLock() {
		return
	}
	defer state.mu.Unlock()

	_, err := state.entry.Pipeline.Run(ctx)
	core.LogRunOutcome(ctx, s.logger, "scheduler."+state.entry.Name, state.entry.Name, err)
}
