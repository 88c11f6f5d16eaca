package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/buildenv"
	"github.com/datawire/matrixci/pkg/checktag"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/secrets"
)

// runJob takes one matrix cell through its lifecycle.  The first failing
// command settles the job; nothing after it runs except the matching
// after_* hook.
func (r *Runner) runJob(ctx context.Context, job pipeline.Job) *Result {
	ctx = dlog.WithField(ctx, "job", job.Number)
	res := &Result{Job: job, StartedAt: time.Now()}
	out := newTranscript(ctx)
	defer func() {
		res.FinishedAt = time.Now()
		res.Transcript = out.Tail()
	}()

	errored := func(stage Stage, err error) *Result {
		res.Status, res.FailedStage, res.Err = StatusErrored, stage, err
		dlog.Errorf(ctx, "%s errored: %v", stage, err)
		return res
	}

	dir := r.Workspace.JobDir(r.Facts.BuildID, job.Number)
	dlog.Infof(ctx, "job %d: python=%q env=%v", job.Number, job.Python, job.Env)
	if err := r.Workspace.Export(ctx, dir); err != nil {
		return errored(StageBootstrap, err)
	}
	exec, err := r.executor(ctx, job, out)
	if err != nil {
		return errored(StageBootstrap, err)
	}
	env, err := r.jobEnv(job, exec, dir)
	if err != nil {
		return errored(StageBootstrap, err)
	}

	p := r.Pipeline
	fail := func(stage Stage, err error) *Result {
		res.Status, res.FailedStage, res.Err = StatusFailed, stage, err
		dlog.Errorf(ctx, "%s failed: %v", stage, err)
		r.runAfter(ctx, exec, env, dir, p.AfterFailure)
		return res
	}

	// a failure in the setup stages is the environment's fault
	for _, phase := range []struct {
		stage    Stage
		commands pipeline.CommandList
	}{
		{StageBeforeInstall, p.BeforeInstall},
		{StageInstall, p.Install},
		{StageBeforeScript, p.BeforeScript},
	} {
		for _, command := range phase.commands {
			if err := exec.Run(ctx, dir, env, command); err != nil {
				res.Status, res.FailedStage, res.Err = StatusErrored, phase.stage, err
				dlog.Errorf(ctx, "%s errored: %v", phase.stage, err)
				r.runAfter(ctx, exec, env, dir, p.AfterFailure)
				return res
			}
		}
	}

	// from here on a failure is the code's fault
	for _, command := range p.Script {
		if err := exec.Run(ctx, dir, env, command); err != nil {
			return fail(StageScript, err)
		}
	}
	if p.CheckTag != "" {
		if err := checktag.Check(ctx, filepath.Join(dir, p.CheckTag), r.Facts.Tag); err != nil {
			return fail(StageCheckTag, err)
		}
	}

	if p.Deploy != nil && p.Deploy.On.Match(job.Number, r.Facts.Tag, r.Facts.Branch) {
		if r.claimDeploy() {
			if err := r.deploy(ctx, exec, env, dir); err != nil {
				return fail(StageDeploy, err)
			}
			res.Deployed = true
		} else {
			dlog.Warnf(ctx, "build already deployed; not deploying again")
		}
	}

	res.Status = StatusPassed
	r.runAfter(ctx, exec, env, dir, p.AfterSuccess)
	return res
}

// jobEnv assembles the job's environment: the variables the runner injects,
// then the pipeline's merged globals and row, the pipeline winning on
// conflicts.  `secure:` values are unsealed here, just before use.
func (r *Runner) jobEnv(job pipeline.Job, exec Executor, dir string) ([]pipeline.Var, error) {
	injected := []pipeline.Var{
		{Name: "CI", Value: "true"},
		{Name: "MATRIXCI", Value: "true"},
		{Name: buildenv.EnvBuildID, Value: r.Facts.BuildID},
		{Name: "MATRIXCI_JOB_NUMBER", Value: strconv.Itoa(job.Number)},
		{Name: "MATRIXCI_PYTHON_VERSION", Value: job.Python},
		{Name: "MATRIXCI_PYTHON", Value: exec.Python()},
		{Name: buildenv.EnvCommit, Value: r.Facts.Commit},
		{Name: buildenv.EnvBranch, Value: r.Facts.Branch},
		{Name: buildenv.EnvTag, Value: r.Facts.Tag},
		{Name: "MATRIXCI_BUILD_DIR", Value: dir},
	}
	vars := make([]pipeline.Var, 0, len(job.Env))
	for _, v := range job.Env {
		val, err := secrets.Resolve(r.Key, v.Value)
		if err != nil {
			return nil, fmt.Errorf("env %s: %w", v.Name, err)
		}
		vars = append(vars, pipeline.Var{Name: v.Name, Value: val})
	}
	return pipeline.MergeVars(injected, vars), nil
}

// runAfter runs an after_success/after_failure hook list.  Hooks never
// change the job's outcome, so their failures only get logged, and one
// failing doesn't stop the rest.
func (r *Runner) runAfter(ctx context.Context, exec Executor, env []pipeline.Var, dir string, commands pipeline.CommandList) {
	for _, command := range commands {
		if err := exec.Run(ctx, dir, env, command); err != nil {
			dlog.Warnf(ctx, "after hook: %v", err)
		}
	}
}
