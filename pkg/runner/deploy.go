package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/datawire/dlib/dlog"
	"github.com/kballard/go-shellquote"

	"github.com/datawire/matrixci/pkg/index"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/sdist"
	"github.com/datawire/matrixci/pkg/secrets"
)

func (r *Runner) deploy(ctx context.Context, exec Executor, env []pipeline.Var, dir string) error {
	d := r.Pipeline.Deploy
	dlog.Infof(ctx, "deploying (provider=%s)", d.Provider)
	switch d.Provider {
	case "pypi":
		return r.deployPyPI(ctx, exec, env, dir)
	case "script":
		return exec.Run(ctx, dir, env, d.Script)
	default:
		return fmt.Errorf("unknown deploy provider %q", d.Provider)
	}
}

func (r *Runner) deployPyPI(ctx context.Context, exec Executor, env []pipeline.Var, dir string) error {
	d := r.Pipeline.Deploy
	username, err := secrets.Resolve(r.Key, d.Username)
	if err != nil {
		return err
	}
	password, err := secrets.Resolve(r.Key, d.Password)
	if err != nil {
		return err
	}
	if username == "" || password == "" {
		return fmt.Errorf("deploy: pypi provider needs username and password")
	}

	art, err := r.buildSdist(ctx, exec, env, dir)
	if err != nil {
		return err
	}

	client := index.Client{
		UploadURL: d.Server,
		Username:  username,
		Password:  password,
	}
	if d.SkipExisting {
		have, err := client.HasRelease(ctx, art.Name, art.Version)
		if err != nil {
			return err
		}
		if have {
			dlog.Infof(ctx, "%s %s is already on the index; skipping upload",
				art.Name, art.Version)
			return nil
		}
	}
	return client.Upload(ctx, art)
}

// buildSdist runs `setup.py sdist` through the job's executor, so an
// image-based job builds with the image's interpreter.  The throwaway
// --dist-dir lives under the job dir, which containers bind-mount, so the
// artifact lands on the host either way.
func (r *Runner) buildSdist(ctx context.Context, exec Executor, env []pipeline.Var, dir string) (*sdist.Artifact, error) {
	tmpdir, err := os.MkdirTemp(dir, ".sdist-")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(tmpdir)
	}()

	command := shellquote.Join(exec.Python(), "setup.py", "sdist", "--dist-dir", tmpdir)
	env = pipeline.MergeVars(env, []pipeline.Var{
		{Name: "SOURCE_DATE_EPOCH", Value: strconv.FormatInt(sdist.BuildTime().Unix(), 10)},
	})
	if err := exec.Run(ctx, dir, env, command); err != nil {
		return nil, fmt.Errorf("sdist build: %w", err)
	}

	entries, err := os.ReadDir(tmpdir)
	if err != nil {
		return nil, err
	}
	if len(entries) != 1 {
		return nil, fmt.Errorf("sdist build: expected exactly 1 artifact, got %d", len(entries))
	}
	filename := entries[0].Name()

	distDir := filepath.Join(dir, "dist")
	if err := os.MkdirAll(distDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(distDir, filename)
	if err := os.Rename(filepath.Join(tmpdir, filename), path); err != nil {
		return nil, err
	}
	dlog.Infof(ctx, "built %s", path)
	return sdist.FromFile(path)
}
