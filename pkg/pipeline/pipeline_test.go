package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/matrixci/pkg/pipeline"
)

const exampleYAML = `
language: python
python:
  - 2.7
  - 3.6
env:
  - NUMPY_VERSION=1.15 OMP_NUM_THREADS=1
  - NUMPY_VERSION=1.16 OMP_NUM_THREADS=1
install:
  - pip install -r requirements.txt
  - pip install .
script:
  - python ./runtests.py
check_tag: abopt/version.py
deploy:
  provider: pypi
  username: __token__
  password: secure:Zm9vYmFyCg==
  distributions: sdist
  on:
    tags: true
    job: 1
`

func TestParse(t *testing.T) {
	t.Parallel()
	p, err := pipeline.Parse([]byte(exampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "python", p.Language)
	// bare YAML numbers and quoted strings both come out as strings
	assert.Equal(t, pipeline.VersionList{"2.7", "3.6"}, p.Python)
	assert.Equal(t, []string{
		"NUMPY_VERSION=1.15 OMP_NUM_THREADS=1",
		"NUMPY_VERSION=1.16 OMP_NUM_THREADS=1",
	}, p.Env.Matrix)
	assert.Empty(t, p.Env.Global)
	assert.Equal(t, pipeline.CommandList{
		"pip install -r requirements.txt",
		"pip install .",
	}, p.Install)
	assert.Equal(t, pipeline.CommandList{"python ./runtests.py"}, p.Script)
	assert.Equal(t, "abopt/version.py", p.CheckTag)

	require.NotNil(t, p.Deploy)
	assert.Equal(t, "pypi", p.Deploy.Provider)
	assert.Equal(t, "__token__", p.Deploy.Username)
	assert.True(t, p.Deploy.On.Tags)
	assert.Equal(t, 1, p.Deploy.On.Job)
}

func TestParseShapes(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Input string
		Check func(t *testing.T, p *pipeline.Pipeline)
	}{
		"env-mapping": {
			Input: `
env:
  global:
    - OMP_NUM_THREADS=1
  matrix:
    - NUMPY_VERSION=1.15
    - NUMPY_VERSION=1.16
script: true
`,
			Check: func(t *testing.T, p *pipeline.Pipeline) {
				assert.Equal(t, []string{"OMP_NUM_THREADS=1"}, p.Env.Global)
				assert.Len(t, p.Env.Matrix, 2)
			},
		},
		"scalar-python": {
			Input: "python: 3.6\nscript: true\n",
			Check: func(t *testing.T, p *pipeline.Pipeline) {
				assert.Equal(t, pipeline.VersionList{"3.6"}, p.Python)
			},
		},
		"scalar-env": {
			Input: "env: OMP_NUM_THREADS=1\nscript: true\n",
			Check: func(t *testing.T, p *pipeline.Pipeline) {
				assert.Equal(t, []string{"OMP_NUM_THREADS=1"}, p.Env.Matrix)
			},
		},
		"scalar-script": {
			Input: "script: python ./runtests.py\n",
			Check: func(t *testing.T, p *pipeline.Pipeline) {
				assert.Equal(t, pipeline.CommandList{"python ./runtests.py"}, p.Script)
			},
		},
		"quoted-version-keeps-zeros": {
			Input: "python: [\"3.50\"]\nscript: true\n",
			Check: func(t *testing.T, p *pipeline.Pipeline) {
				assert.Equal(t, pipeline.VersionList{"3.50"}, p.Python)
			},
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			p, err := pipeline.Parse([]byte(tc.Input))
			require.NoError(t, err)
			tc.Check(t, p)
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	testcases := map[string]string{
		"unknown-key":      "scirpt: true\n",
		"bad-language":     "language: cobol\nscript: true\n",
		"bad-image":        "image: 'not a ref!!'\nscript: true\n",
		"nothing-to-run":   "language: python\n",
		"bad-env-row":      "env: ['NUMPY_VERSION']\nscript: true\n",
		"unterminated-row": "env: ['A=\"b']\nscript: true\n",
		"bad-provider":     "script: true\ndeploy: {provider: rubygems}\n",
		"scriptless":       "script: true\ndeploy: {provider: script}\n",
		"bad-dists":        "script: true\ndeploy: {provider: pypi, distributions: wheel}\n",
	}
	for tcName, input := range testcases {
		input := input
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			_, err := pipeline.Parse([]byte(input))
			assert.Error(t, err)
		})
	}
}

func TestJobs(t *testing.T) {
	t.Parallel()
	p, err := pipeline.Parse([]byte(exampleYAML))
	require.NoError(t, err)

	jobs, err := p.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 4)

	for i, job := range jobs {
		assert.Equal(t, i+1, job.Number)
	}
	assert.Equal(t, "2.7", jobs[0].Python)
	assert.Equal(t, "2.7", jobs[1].Python)
	assert.Equal(t, "3.6", jobs[2].Python)
	assert.Equal(t, "3.6", jobs[3].Python)
	assert.Equal(t, []pipeline.Var{
		{Name: "NUMPY_VERSION", Value: "1.15"},
		{Name: "OMP_NUM_THREADS", Value: "1"},
	}, jobs[0].Env)
	assert.Equal(t, "1.16", jobs[1].Env[0].Value)

	// expansion is pure: doing it again gives the same answer
	again, err := p.Jobs()
	require.NoError(t, err)
	assert.Equal(t, jobs, again)
}

func TestJobsDegenerate(t *testing.T) {
	t.Parallel()
	p, err := pipeline.Parse([]byte("script: true\n"))
	require.NoError(t, err)
	jobs, err := p.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Number)
	assert.Equal(t, "", jobs[0].Python)
	assert.Empty(t, jobs[0].Env)
}

func TestParseVars(t *testing.T) {
	t.Parallel()
	vars, err := pipeline.ParseVars(`NUMPY_VERSION=1.15 MSG="hello world" EMPTY=`)
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Var{
		{Name: "NUMPY_VERSION", Value: "1.15"},
		{Name: "MSG", Value: "hello world"},
		{Name: "EMPTY", Value: ""},
	}, vars)

	_, err = pipeline.ParseVars("NOVALUE")
	assert.Error(t, err)
	_, err = pipeline.ParseVars("=nope")
	assert.Error(t, err)
}

func TestMergeVars(t *testing.T) {
	t.Parallel()
	global := []pipeline.Var{{Name: "OMP_NUM_THREADS", Value: "1"}, {Name: "CC", Value: "gcc"}}
	row := []pipeline.Var{{Name: "OMP_NUM_THREADS", Value: "4"}}
	assert.Equal(t, []pipeline.Var{
		{Name: "OMP_NUM_THREADS", Value: "4"},
		{Name: "CC", Value: "gcc"},
	}, pipeline.MergeVars(global, row))
}

func TestDeployGate(t *testing.T) {
	t.Parallel()
	type testcase struct {
		On     pipeline.DeployOn
		Job    int
		Tag    string
		Branch string
		Want   bool
	}
	testcases := map[string]testcase{
		"tagged-first-job":    {pipeline.DeployOn{Tags: true}, 1, "1.0.2", "master", true},
		"tagged-second-job":   {pipeline.DeployOn{Tags: true}, 2, "1.0.2", "master", false},
		"untagged":            {pipeline.DeployOn{Tags: true}, 1, "", "master", false},
		"explicit-job":        {pipeline.DeployOn{Tags: true, Job: 3}, 3, "1.0.2", "", true},
		"no-tag-requirement":  {pipeline.DeployOn{}, 1, "", "master", true},
		"branch-match":        {pipeline.DeployOn{Branch: "release"}, 1, "", "release", true},
		"branch-mismatch":     {pipeline.DeployOn{Branch: "release"}, 1, "", "master", false},
		"tag-does-not-excuse": {pipeline.DeployOn{Tags: true, Branch: "release"}, 1, "1.0.2", "master", false},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.Want, tc.On.Match(tc.Job, tc.Tag, tc.Branch))
		})
	}
}
