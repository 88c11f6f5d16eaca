// Package workspace manages the on-disk state of pipeline runs: a lock that
// serializes whole runs over one checkout, and disposable per-job copies of
// the source tree so that parallel jobs cannot observe each other's writes.
//
// Layout under the project root:
//
//	.matrixci/
//	  lock                 serializes runs over this checkout
//	  builds/<build-id>/
//	    job-<n>/           one exported source tree per job
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofrs/flock"
)

// StateDirName is the engine's directory inside the project root.  Exports
// never include it.
const StateDirName = ".matrixci"

type Workspace struct {
	root string // the project directory
	dir  string // root/.matrixci
	lock *flock.Flock
}

// Open prepares the workspace directory under root.  It does not take the
// lock.
func Open(root string) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(root, StateDirName)
	if err := os.MkdirAll(filepath.Join(dir, "builds"), 0o755); err != nil {
		return nil, err
	}
	return &Workspace{
		root: root,
		dir:  dir,
		lock: flock.New(filepath.Join(dir, "lock")),
	}, nil
}

// Root returns the project directory the workspace belongs to.
func (w *Workspace) Root() string {
	return w.root
}

// Lock takes the run lock, waiting for a concurrent run over the same
// checkout to finish.  Cancel the context to give up waiting.
func (w *Workspace) Lock(ctx context.Context) error {
	locked, err := w.lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return fmt.Errorf("workspace lock %s: %w", w.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("workspace lock %s: not acquired", w.lock.Path())
	}
	return nil
}

// Unlock releases the run lock.
func (w *Workspace) Unlock() error {
	return w.lock.Unlock()
}

// BuildDir returns the directory holding one build's job trees.
func (w *Workspace) BuildDir(buildID string) string {
	return filepath.Join(w.dir, "builds", buildID)
}

// JobDir returns the directory a job runs in.
func (w *Workspace) JobDir(buildID string, jobNumber int) string {
	return filepath.Join(w.BuildDir(buildID), "job-"+strconv.Itoa(jobNumber))
}

// Cleanup removes everything a build left on disk.
func (w *Workspace) Cleanup(buildID string) error {
	return os.RemoveAll(w.BuildDir(buildID))
}
