package runner

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dexec"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/datawire/matrixci/pkg/pipeline"
)

type dockerExec struct {
	image string
	out   *transcript
}

// newDockerExec picks the job's container image (an explicit `image:` wins,
// otherwise the official python image for the requested version) and pulls
// it up front, so a bad reference errors the job in bootstrap instead of
// halfway through install.
func newDockerExec(ctx context.Context, image, version string, out *transcript) (*dockerExec, error) {
	if image == "" {
		if version == "" {
			version = "3"
		}
		image = "python:" + version
	}
	if _, err := name.ParseReference(image); err != nil {
		return nil, err
	}
	if err := dexec.CommandContext(ctx, "docker", "image", "pull", image).Run(); err != nil {
		return nil, fmt.Errorf("pull %s: %w", image, err)
	}
	return &dockerExec{image: image, out: out}, nil
}

// Run bind-mounts the job dir at its own path, so filenames mean the same
// thing inside and outside the container.
func (e *dockerExec) Run(ctx context.Context, dir string, extra []pipeline.Var, command string) error {
	args := []string{"run", "--rm",
		"--volume", dir + ":" + dir,
		"--workdir", dir,
	}
	for _, v := range extra {
		args = append(args, "--env", v.String())
	}
	args = append(args, e.image, "bash", "-c", command)
	cmd := dexec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = e.out
	cmd.Stderr = e.out
	defer e.out.Flush()
	return cmd.Run()
}

func (e *dockerExec) Python() string { return "python" }
