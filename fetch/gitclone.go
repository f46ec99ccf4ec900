package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/teaxyz/chai/core"
)

// GitCloneFetcher shallow-clones a git remote (pkgx's pantry is distributed
// this way) into a fresh snapshot directory. Grounded on the pack's use of
// go-git for repository checkout; Depth: 1 keeps each run to the tip commit
// only, since CHAI only ever reads the working tree of the latest snapshot.
type GitCloneFetcher struct {
	// Reference optionally pins a branch, looked up as refs/heads/<Reference>
	// (a tag name is not resolved); defaults to the remote's HEAD.
	Reference string
}

func (f GitCloneFetcher) Fetch(ctx context.Context, dataRoot, packageManager string, spec Spec) (string, error) {
	dir := snapshotDir(dataRoot, packageManager, time.Now())

	opts := &git.CloneOptions{
		URL:   spec.URL,
		Depth: 1,
	}
	if f.Reference != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(f.Reference)
		opts.SingleBranch = true
	}

	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", core.ErrCancellationRequested, ctx.Err())
		}
		return "", fmt.Errorf("%w: clone %s: %v", core.ErrTransientFetch, spec.URL, err)
	}

	return dir, nil
}
