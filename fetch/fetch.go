// Package fetch implements CHAI's ecosystem-agnostic fetch contract
// (§4.6): pull one upstream snapshot into a timestamped directory under
// the data root, then atomically flip a "latest" symlink onto it.
package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Kind selects which transport/archive format a Fetcher understands.
type Kind string

const (
	KindTarball  Kind = "tarball"
	KindGzip     Kind = "gzip"
	KindGitClone Kind = "git-clone"
)

// Spec names one upstream source to fetch.
type Spec struct {
	// URL is the upstream location: an HTTP(S) URL for tarball/gzip, a
	// git remote for git-clone.
	URL string
	Kind Kind
}

// Fetcher pulls one upstream snapshot into a local directory and returns
// its path. Implementations never mutate dataRoot outside the directory
// they return.
type Fetcher interface {
	Fetch(ctx context.Context, dataRoot, packageManager string, spec Spec) (dir string, err error)
}

// snapshotDir returns a fresh ISO8601-stamped directory path for one fetch
// under <data_root>/<pm>/, per §4.6/§6.
func snapshotDir(dataRoot, packageManager string, now time.Time) string {
	stamp := now.UTC().Format("20060102T150405Z")
	return filepath.Join(dataRoot, packageManager, stamp)
}

// PromoteLatest atomically repoints <data_root>/<pm>/latest at dir. It
// writes a new symlink at a temporary path first, then renames it over
// the real one, so a reader following "latest" concurrently with a
// promotion never observes a half-written symlink (§6's atomicity
// requirement).
func PromoteLatest(dataRoot, packageManager, dir string) error {
	latest := filepath.Join(dataRoot, packageManager, "latest")
	tmp := latest + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())

	if err := os.MkdirAll(filepath.Dir(latest), 0o755); err != nil {
		return fmt.Errorf("fetch: create package manager dir: %w", err)
	}
	if err := os.Symlink(dir, tmp); err != nil {
		return fmt.Errorf("fetch: create temp symlink: %w", err)
	}
	if err := os.Rename(tmp, latest); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fetch: promote latest symlink: %w", err)
	}
	return nil
}

// CleanupSnapshot removes a timestamped snapshot directory, used after a
// successful Ingest when NO_CACHE is set (§4.6, §6).
func CleanupSnapshot(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("fetch: cleanup snapshot %s: %w", dir, err)
	}
	return nil
}
