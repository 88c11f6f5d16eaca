package runner_test

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/matrixci/pkg/buildenv"
	"github.com/datawire/matrixci/pkg/index"
	"github.com/datawire/matrixci/pkg/indexserver"
	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/pyversion"
	"github.com/datawire/matrixci/pkg/runner"
	"github.com/datawire/matrixci/pkg/secrets"
	"github.com/datawire/matrixci/pkg/workspace"
)

func needsBash(t *testing.T) {
	t.Helper()
	if _, err := dexec.LookPath("bash"); err != nil {
		t.Skip("no bash executable")
	}
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, path)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
	return root
}

func newRunner(t *testing.T, root, config string) *runner.Runner {
	t.Helper()
	p, err := pipeline.Parse([]byte(config))
	require.NoError(t, err)
	ws, err := workspace.Open(root)
	require.NoError(t, err)
	return &runner.Runner{
		Pipeline:  p,
		Facts:     buildenv.Facts{BuildID: "test-build", Commit: "0000000", Branch: "main"},
		Workspace: ws,
	}
}

func jobPath(r *runner.Runner, jobNumber int, name string) string {
	return filepath.Join(r.Workspace.JobDir(r.Facts.BuildID, jobNumber), name)
}

func jobFile(t *testing.T, r *runner.Runner, jobNumber int, name string) string {
	t.Helper()
	data, err := os.ReadFile(jobPath(r, jobNumber, name))
	require.NoError(t, err)
	return string(data)
}

func TestRunMatrix(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	root := writeProject(t, map[string]string{"README": "hi\n"})
	r := newRunner(t, root, `
language: generic
env:
  global:
    - GREETING=hello
  matrix:
    - ROW=one
    - ROW=two
script:
  - echo "$GREETING $ROW job=$MATRIXCI_JOB_NUMBER ci=$CI" > out.log
`)

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for i, res := range results {
		assert.Equal(t, runner.StatusPassed, res.Status)
		assert.Equal(t, i+1, res.Job.Number)
		assert.False(t, res.Deployed)
		assert.NoError(t, res.Err)
	}
	assert.Equal(t, runner.StatusPassed, runner.BuildStatus(results))

	// each job saw its own row merged over the globals, plus the
	// injected variables
	assert.Equal(t, "hello one job=1 ci=true\n", jobFile(t, r, 1, "out.log"))
	assert.Equal(t, "hello two job=2 ci=true\n", jobFile(t, r, 2, "out.log"))
}

func TestRunFailFast(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	root := writeProject(t, map[string]string{"README": "hi\n"})
	r := newRunner(t, root, `
language: generic
install:
  - echo ok > install.log
script:
  - echo first > first.log
  - echo boom; exit 3
  - echo second > second.log
after_failure:
  - echo cleanup > after.log
`)

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, runner.StatusFailed, res.Status)
	assert.Equal(t, runner.StageScript, res.FailedStage)
	assert.Error(t, res.Err)
	assert.Contains(t, res.Transcript, "boom", "the run record keeps the job's output tail")
	assert.Equal(t, runner.StatusFailed, runner.BuildStatus(results))

	assert.FileExists(t, jobPath(r, 1, "install.log"))
	assert.FileExists(t, jobPath(r, 1, "first.log"))
	assert.NoFileExists(t, jobPath(r, 1, "second.log"), "commands after the failure must not run")
	assert.FileExists(t, jobPath(r, 1, "after.log"), "after_failure runs on failure")
}

func TestRunErrored(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	root := writeProject(t, map[string]string{"README": "hi\n"})
	r := newRunner(t, root, `
language: generic
install:
  - exit 1
script:
  - echo ran > ran.log
after_failure:
  - echo cleanup > after.log
`)

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	res := results[0]
	assert.Equal(t, runner.StatusErrored, res.Status, "install failures are the environment's fault")
	assert.Equal(t, runner.StageInstall, res.FailedStage)
	assert.NoFileExists(t, jobPath(r, 1, "ran.log"))
	assert.FileExists(t, jobPath(r, 1, "after.log"))
	assert.Equal(t, runner.StatusErrored, runner.BuildStatus(results))
}

func TestAfterSuccessKeepsGoing(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	root := writeProject(t, map[string]string{"README": "hi\n"})
	r := newRunner(t, root, `
language: generic
script: true
after_success:
  - exit 1
  - echo still > still.log
`)

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, runner.StatusPassed, results[0].Status, "hooks never change the outcome")
	assert.FileExists(t, jobPath(r, 1, "still.log"), "a failing hook doesn't stop the rest")
}

func TestDeployGate(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	config := `
language: generic
env:
  - ROW=a
  - ROW=b
script: true
deploy:
  provider: script
  script: echo deployed by $MATRIXCI_JOB_NUMBER > deployed.log
  on:
    tags: true
    job: 2
`

	// untagged build: the gate stays closed for every job
	r := newRunner(t, writeProject(t, map[string]string{"README": "hi\n"}), config)
	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, res := range results {
		assert.Equal(t, runner.StatusPassed, res.Status)
		assert.False(t, res.Deployed)
	}
	assert.NoFileExists(t, jobPath(r, 1, "deployed.log"))
	assert.NoFileExists(t, jobPath(r, 2, "deployed.log"))

	// tagged build: exactly the designated job deploys
	r = newRunner(t, writeProject(t, map[string]string{"README": "hi\n"}), config)
	r.Facts.Tag = "v1.0"
	results, err = r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.False(t, results[0].Deployed)
	assert.True(t, results[1].Deployed)
	assert.NoFileExists(t, jobPath(r, 1, "deployed.log"))
	assert.Equal(t, "deployed by 2\n", jobFile(t, r, 2, "deployed.log"))
}

func TestSecretEnv(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealed, err := secrets.Encrypt(key, "s3cret")
	require.NoError(t, err)

	config := `
language: generic
env:
  - TOKEN=` + sealed + `
script:
  - echo "$TOKEN" > token.log
`

	r := newRunner(t, writeProject(t, map[string]string{"README": "hi\n"}), config)
	r.Key = key
	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, runner.StatusPassed, results[0].Status)
	assert.Equal(t, "s3cret\n", jobFile(t, r, 1, "token.log"))

	// same pipeline without the key: the job must error out rather than
	// run with the ciphertext in the environment
	r = newRunner(t, writeProject(t, map[string]string{"README": "hi\n"}), config)
	results, err = r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, runner.StatusErrored, results[0].Status)
	assert.Equal(t, runner.StageBootstrap, results[0].FailedStage)
	assert.NoFileExists(t, jobPath(r, 1, "token.log"))
}

func TestRunConcurrent(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	r := newRunner(t, writeProject(t, map[string]string{"README": "hi\n"}), `
language: generic
env:
  - ROW=a
  - ROW=b
  - ROW=c
script:
  - echo "$ROW" > out.log
`)
	r.Concurrency = 2

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, row := range []string{"a", "b", "c"} {
		require.NotNil(t, results[i])
		assert.Equal(t, runner.StatusPassed, results[i].Status)
		assert.Equal(t, row+"\n", jobFile(t, r, i+1, "out.log"))
	}
}

func TestBuildStatus(t *testing.T) {
	t.Parallel()
	mk := func(statuses ...runner.Status) []*runner.Result {
		results := make([]*runner.Result, 0, len(statuses))
		for _, status := range statuses {
			results = append(results, &runner.Result{Status: status})
		}
		return results
	}
	assert.Equal(t, runner.StatusPassed, runner.BuildStatus(nil))
	assert.Equal(t, runner.StatusPassed, runner.BuildStatus(mk(runner.StatusPassed, runner.StatusPassed)))
	assert.Equal(t, runner.StatusFailed, runner.BuildStatus(mk(runner.StatusPassed, runner.StatusFailed)))
	assert.Equal(t, runner.StatusErrored, runner.BuildStatus(mk(runner.StatusFailed, runner.StatusErrored, runner.StatusPassed)))
	assert.Equal(t, runner.StatusCanceled, runner.BuildStatus(mk(runner.StatusPassed, runner.StatusCanceled)))
}

func mustParse(t *testing.T, str string) *pyversion.Version {
	t.Helper()
	ver, err := pyversion.Parse(str)
	require.NoError(t, err)
	return ver
}

func TestDeployPyPI(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, true)
	if _, err := dexec.LookPath("python3"); err != nil {
		t.Skip("no python3 executable")
	}
	if err := dexec.CommandContext(ctx, "python3", "-c", "import setuptools").Run(); err != nil {
		t.Skip("python3 has no setuptools")
	}

	root := writeProject(t, map[string]string{
		"setup.py": "" +
			"try:\n" +
			"    from setuptools import setup\n" +
			"except ImportError:\n" +
			"    from distutils.core import setup\n" +
			"\n" +
			"setup(name=\"abopt\", version=\"1.0.2\", py_modules=[\"version\"])\n",
		"version.py":  "__version__ = \"1.0.2\"\n",
		"runtests.py": "print(\"ok\")\n",
	})

	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	sealed, err := secrets.Encrypt(key, "hunter2")
	require.NoError(t, err)

	srv := httptest.NewServer((&indexserver.Server{
		Dir:      t.TempDir(),
		Username: "ci",
		Password: "hunter2",
	}).Handler())
	t.Cleanup(srv.Close)

	config := `
language: python
script:
  - $MATRIXCI_PYTHON runtests.py
check_tag: version.py
deploy:
  provider: pypi
  server: ` + srv.URL + `/legacy/
  username: ci
  password: ` + sealed + `
  skip_existing: true
  on:
    tags: true
`

	r := newRunner(t, root, config)
	r.Key = key
	r.Facts.Tag = "v1.0.2"
	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, runner.StatusPassed, results[0].Status)
	assert.True(t, results[0].Deployed)

	client := index.Client{UploadURL: srv.URL + "/legacy/"}
	have, err := client.HasRelease(ctx, "abopt", *mustParse(t, "1.0.2"))
	require.NoError(t, err)
	assert.True(t, have, "the sdist made it onto the index")

	// re-running the tagged build: skip_existing turns the re-upload
	// into a no-op instead of a duplicate-file failure
	r = newRunner(t, root, config)
	r.Key = key
	r.Facts.Tag = "v1.0.2"
	r.Facts.BuildID = "test-build-2"
	results, err = r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, runner.StatusPassed, results[0].Status)
}

func TestCheckTagMismatch(t *testing.T) {
	t.Parallel()
	needsBash(t)
	ctx := dlog.NewTestContext(t, false)

	root := writeProject(t, map[string]string{
		"version.py": "__version__ = \"1.0.2\"\n",
	})
	config := `
language: generic
script: true
check_tag: version.py
`

	// untagged: the consistency check has nothing to compare, job passes
	r := newRunner(t, root, config)
	results, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusPassed, results[0].Status)

	// tagged with a different version: that's a release mistake, fail
	r = newRunner(t, root, config)
	r.Facts.Tag = "v1.0.3"
	results, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, results[0].Status)
	assert.Equal(t, runner.StageCheckTag, results[0].FailedStage)

	// tagged with the declared version: pass
	r = newRunner(t, root, config)
	r.Facts.Tag = "v1.0.2"
	results, err = r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.StatusPassed, results[0].Status)
}
