// Package pipeline is the configuration model for matrixci pipelines: the
// `.matrixci.yml` file format, and the expansion of its interpreter/env
// matrix into concrete jobs.
package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-containerregistry/pkg/name"
	"sigs.k8s.io/yaml"
)

// DefaultFile is the pipeline filename looked for when none is given on the
// command line.
const DefaultFile = ".matrixci.yml"

// Pipeline is a parsed pipeline file.
//
// The zero value of every field is "not configured"; Validate decides which
// combinations make sense.
type Pipeline struct {
	// Language selects interpreter handling: "python" (the default)
	// resolves each matrix version to an interpreter executable, "generic"
	// only exports the version to the environment.
	Language string `json:"language,omitempty"`
	// Python lists the interpreter versions to expand the matrix over.
	Python VersionList `json:"python,omitempty"`
	// Image names a container image to run the job commands in instead of
	// the host shell.
	Image string `json:"image,omitempty"`
	// Env declares per-job environment variables; see EnvConfig for the
	// two accepted shapes.
	Env EnvConfig `json:"env,omitempty"`

	BeforeInstall CommandList `json:"before_install,omitempty"`
	Install       CommandList `json:"install,omitempty"`
	BeforeScript  CommandList `json:"before_script,omitempty"`
	Script        CommandList `json:"script,omitempty"`
	AfterSuccess  CommandList `json:"after_success,omitempty"`
	AfterFailure  CommandList `json:"after_failure,omitempty"`

	// CheckTag, if set, names a Python source file whose declared version
	// must agree with the tag of a tagged build.  It runs as its own step
	// after `script`.
	CheckTag string `json:"check_tag,omitempty"`
	// Deploy, if set, publishes from the job that its `on` gate selects.
	Deploy *Deploy `json:"deploy,omitempty"`
	// History, if set, is a database URL ("sqlite:PATH") to record build
	// and job results in.
	History string `json:"history,omitempty"`
}

// Deploy configures the publication step.
type Deploy struct {
	// Provider is "pypi" (build an sdist and upload it to a package
	// index) or "script" (run a command).
	Provider string `json:"provider"`
	// Server overrides the index upload URL for the pypi provider.
	Server   string `json:"server,omitempty"`
	Username string `json:"username,omitempty"`
	// Password is the index credential; it may be a "secure:" value
	// holding ciphertext rather than plaintext.
	Password string `json:"password,omitempty"`
	// Distributions selects what to build for the pypi provider;
	// only "sdist" (the default) is supported.
	Distributions string `json:"distributions,omitempty"`
	// SkipExisting makes uploading an already-released version a no-op
	// instead of an error.
	SkipExisting bool `json:"skip_existing,omitempty"`
	// Script is the command for the script provider.
	Script string `json:"script,omitempty"`

	On DeployOn `json:"on,omitempty"`
}

// DeployOn is the gate deciding which job (if any) runs the deploy step.
type DeployOn struct {
	// Tags restricts deployment to builds whose commit carries a tag.
	Tags bool `json:"tags,omitempty"`
	// Job is the 1-based ordinal of the deploying job; 0 means 1.  The
	// gate makes at most one job of the matrix deploy.
	Job int `json:"job,omitempty"`
	// Branch, if set, restricts deployment to builds of that branch.
	Branch string `json:"branch,omitempty"`
}

// Match reports whether the gate selects the given job: the build must carry
// a tag when Tags is set, the job ordinal must be the designated one, and
// the branch must match when one is named.
func (on DeployOn) Match(jobNumber int, tag, branch string) bool {
	if on.Tags && tag == "" {
		return false
	}
	want := on.Job
	if want == 0 {
		want = 1
	}
	if jobNumber != want {
		return false
	}
	if on.Branch != "" && branch != on.Branch {
		return false
	}
	return true
}

// VersionList accepts the shapes YAML allows for interpreter versions: a
// single scalar or a list, with each version spelled either as a string or
// as a bare number ("3.6" vs 3.6).
type VersionList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *VersionList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		items = []json.RawMessage{json.RawMessage(data)}
	}
	ret := make(VersionList, 0, len(items))
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err != nil {
			var num json.Number
			if err := json.Unmarshal(item, &num); err != nil {
				return fmt.Errorf("version must be a string or a number: %s", item)
			}
			str = num.String()
		}
		ret = append(ret, str)
	}
	*l = ret
	return nil
}

// CommandList accepts either a single command or a list of commands, the way
// the phase keys of a Travis file do.
type CommandList []string

// UnmarshalJSON implements json.Unmarshaler.  A bare `true` or `42` reads
// from YAML as a non-string scalar but is a fine shell command, so scalars
// keep their literal spelling.
func (l *CommandList) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		items = []json.RawMessage{json.RawMessage(data)}
	}
	ret := make(CommandList, 0, len(items))
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err != nil {
			trimmed := bytes.TrimSpace(item)
			if len(trimmed) == 0 || trimmed[0] == '{' || trimmed[0] == '[' {
				return fmt.Errorf("command must be a scalar: %s", item)
			}
			str = string(trimmed)
		}
		ret = append(ret, str)
	}
	*l = ret
	return nil
}

// Parse parses and validates pipeline file content.  Unknown keys are
// errors; a typo'd phase name silently running zero commands would be much
// worse than a loud failure.
func Parse(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p, yaml.DisallowUnknownFields); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads and parses the pipeline file at path.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Validate checks the parts of a Pipeline that the type system can't.
func (p *Pipeline) Validate() error {
	switch p.Language {
	case "", "python", "generic":
		// ok
	default:
		return fmt.Errorf("unsupported language: %q", p.Language)
	}
	if p.Image != "" {
		if _, err := name.ParseReference(p.Image); err != nil {
			return fmt.Errorf("image: %w", err)
		}
	}
	if len(p.Script) == 0 && p.CheckTag == "" && p.Deploy == nil {
		return fmt.Errorf("pipeline has nothing to run: no script, check_tag, or deploy")
	}
	for _, row := range append(append([]string(nil), p.Env.Global...), p.Env.Matrix...) {
		if _, err := ParseVars(row); err != nil {
			return err
		}
	}
	if d := p.Deploy; d != nil {
		switch d.Provider {
		case "pypi":
			// credentials may arrive via the environment at run time
		case "script":
			if d.Script == "" {
				return fmt.Errorf("deploy: script provider without a script")
			}
		default:
			return fmt.Errorf("deploy: unsupported provider: %q", d.Provider)
		}
		if d.Distributions != "" && d.Distributions != "sdist" {
			return fmt.Errorf("deploy: unsupported distributions: %q", d.Distributions)
		}
		if d.On.Job < 0 {
			return fmt.Errorf("deploy: on.job must be a positive job number")
		}
	}
	return nil
}
