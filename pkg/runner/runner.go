// Package runner executes a pipeline's build matrix: every job gets a clean
// export of the source tree and runs its lifecycle stages in order, stopping
// at the first failure, with deploys gated so at most one job per build ever
// publishes anything.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/datawire/dlib/dgroup"

	"github.com/datawire/matrixci/pkg/buildenv"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/workspace"
)

// Status is a job's (or the whole build's) outcome.
type Status string

const (
	// StatusPassed means every stage completed.
	StatusPassed Status = "passed"
	// StatusFailed means the code is at fault: script, check_tag, or
	// deploy stopped the job.
	StatusFailed Status = "failed"
	// StatusErrored means the environment is at fault: the job never got
	// through bootstrap and the install stages.
	StatusErrored Status = "errored"
	// StatusCanceled means the job never ran because the build was
	// interrupted.
	StatusCanceled Status = "canceled"
)

// Stage names a step of the job lifecycle.
type Stage string

const (
	StageBootstrap     Stage = "bootstrap"
	StageBeforeInstall Stage = "before_install"
	StageInstall       Stage = "install"
	StageBeforeScript  Stage = "before_script"
	StageScript        Stage = "script"
	StageCheckTag      Stage = "check_tag"
	StageDeploy        Stage = "deploy"
)

// Result is one job's outcome.
type Result struct {
	Job    pipeline.Job
	Status Status
	// FailedStage says where a non-passed job stopped; empty otherwise.
	FailedStage Stage
	Err         error
	// Deployed is set on the one job that ran the deploy stage.
	Deployed bool
	// Transcript is the tail of the job's command output.
	Transcript string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner runs one build of a pipeline.  A Runner is good for a single Run
// call; the deploy slot it tracks is per build.
type Runner struct {
	Pipeline  *pipeline.Pipeline
	Facts     buildenv.Facts
	Workspace *workspace.Workspace
	// Key decrypts `secure:` pipeline values; leave nil for pipelines
	// that don't carry any.
	Key []byte
	// Concurrency caps how many jobs run at once.  Anything below 2 runs
	// the matrix serially in ordinal order.
	Concurrency int
	// Docker runs every job in a container even when the pipeline names
	// no image.
	Docker bool

	mu       sync.Mutex
	deployed bool
}

// Run expands the matrix and runs every job.  Job failures land in the
// results, not in the returned error; the error is for the build not being
// runnable at all.
func (r *Runner) Run(ctx context.Context) ([]*Result, error) {
	jobs, err := r.Pipeline.Jobs()
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(jobs))
	if r.Concurrency > 1 {
		sem := make(chan struct{}, r.Concurrency)
		group := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
		for i := range jobs {
			group.Go(fmt.Sprintf("job-%d", jobs[i].Number), func(ctx context.Context) error {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					results[i] = canceled(jobs[i])
					return nil
				}
				defer func() { <-sem }()
				results[i] = r.runJob(ctx, jobs[i])
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			// keep the one-result-per-job shape even when a worker died
			for i := range results {
				if results[i] == nil {
					results[i] = canceled(jobs[i])
				}
			}
			return results, err
		}
		return results, nil
	}

	for i := range jobs {
		if ctx.Err() != nil {
			results[i] = canceled(jobs[i])
			continue
		}
		results[i] = r.runJob(ctx, jobs[i])
	}
	return results, nil
}

func canceled(job pipeline.Job) *Result {
	now := time.Now()
	return &Result{Job: job, Status: StatusCanceled, StartedAt: now, FinishedAt: now}
}

// claimDeploy grants the build's single deploy slot to the first job that
// asks for it.
func (r *Runner) claimDeploy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deployed {
		return false
	}
	r.deployed = true
	return true
}

// severity orders statuses for the aggregate; the worst job wins.
var severity = map[Status]int{
	StatusPassed:   0,
	StatusCanceled: 1,
	StatusFailed:   2,
	StatusErrored:  3,
}

// BuildStatus folds job results into the build's overall status.
func BuildStatus(results []*Result) Status {
	status := StatusPassed
	for _, res := range results {
		if severity[res.Status] > severity[status] {
			status = res.Status
		}
	}
	return status
}
