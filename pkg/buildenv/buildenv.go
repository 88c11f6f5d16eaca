// Package buildenv discovers the build-level facts a pipeline run exports to
// its jobs and gates deployment on: what commit is being built, on what
// branch, and whether the commit carries a tag.
package buildenv

import (
	"context"
	"os"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
)

// Environment variables that override discovery, so the engine can run
// inside another CI system that already knows these facts.
const (
	EnvBuildID = "MATRIXCI_BUILD_ID"
	EnvCommit  = "MATRIXCI_COMMIT"
	EnvBranch  = "MATRIXCI_BRANCH"
	EnvTag     = "MATRIXCI_TAG"
)

// Facts are immutable for the duration of a build; every job of the matrix
// sees the same values.
type Facts struct {
	BuildID string
	Commit  string
	Branch  string
	Tag     string
}

// Discover collects Facts for the source tree at dir.  Each fact prefers its
// MATRIXCI_* override and falls back to asking git; a tree that isn't a git
// checkout yields empty commit/branch/tag, which in particular means "not
// tagged" to deploy gates.
func Discover(ctx context.Context, dir string) (*Facts, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	facts := &Facts{
		BuildID: os.Getenv(EnvBuildID),
		Commit:  os.Getenv(EnvCommit),
		Branch:  os.Getenv(EnvBranch),
		Tag:     os.Getenv(EnvTag),
	}
	if facts.BuildID == "" {
		facts.BuildID = uuid.NewString()
	}

	if facts.Commit == "" {
		commit, err := gitOutput(ctx, dir, "rev-parse", "HEAD")
		if err != nil {
			dlog.Debugf(ctx, "not a git checkout: %v", err)
			return facts, nil
		}
		facts.Commit = commit
	}
	if facts.Branch == "" {
		branch, err := gitOutput(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
		if err == nil {
			facts.Branch = branch
		}
	}
	if facts.Tag == "" {
		// a non-zero exit simply means the commit isn't tagged
		tag, err := gitOutput(ctx, dir, "describe", "--tags", "--exact-match", "HEAD")
		if err == nil {
			facts.Tag = tag
		}
	}
	return facts, nil
}

// Tagged reports whether the build's commit carries a tag.
func (f *Facts) Tagged() bool {
	return f.Tag != ""
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := dexec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
