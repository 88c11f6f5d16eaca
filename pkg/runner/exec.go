package runner

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/pipeline"
)

// Executor runs one job's commands, on the host or inside a container.
type Executor interface {
	// Run executes command with `bash -c` in dir, with extra layered on
	// top of the base environment.
	Run(ctx context.Context, dir string, extra []pipeline.Var, command string) error
	// Python names the interpreter commands should use.
	Python() string
}

func (r *Runner) executor(ctx context.Context, job pipeline.Job, out *transcript) (Executor, error) {
	if r.Docker || r.Pipeline.Image != "" {
		return newDockerExec(ctx, r.Pipeline.Image, job.Python, out)
	}
	exec, err := newLocalExec(ctx, job.Python, out)
	if err != nil {
		if r.Pipeline.Language == "generic" {
			// generic jobs only export the version; no interpreter
			// needed
			return &localExec{out: out}, nil
		}
		return nil, err
	}
	return exec, nil
}

type localExec struct {
	python string
	out    *transcript
}

// newLocalExec resolves the job's interpreter off the PATH: python3.6 when
// asked for 3.6, falling back to whatever generic python the machine has.
// The fallback gets a warning; a host that runs the matrix with one
// interpreter isn't testing what it claims to.
func newLocalExec(ctx context.Context, version string, out *transcript) (*localExec, error) {
	candidates := []string{"python3", "python"}
	if version != "" {
		candidates = append([]string{"python" + version}, candidates...)
	}
	for i, candidate := range candidates {
		exe, err := dexec.LookPath(candidate)
		if err != nil {
			continue
		}
		if version != "" && i > 0 {
			dlog.Warnf(ctx, "no python%s on PATH; using %s", version, exe)
		}
		return &localExec{python: exe, out: out}, nil
	}
	return nil, fmt.Errorf("no python interpreter on PATH")
}

func (e *localExec) Run(ctx context.Context, dir string, extra []pipeline.Var, command string) error {
	cmd := dexec.CommandContext(ctx, "bash", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), varStrings(extra)...)
	cmd.Stdout = e.out
	cmd.Stderr = e.out
	defer e.out.Flush()
	return cmd.Run()
}

func (e *localExec) Python() string { return e.python }

func varStrings(vars []pipeline.Var) []string {
	strs := make([]string, 0, len(vars))
	for _, v := range vars {
		strs = append(strs, v.String())
	}
	return strs
}
