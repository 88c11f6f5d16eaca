package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/datawire/matrixci/pkg/pipeline"
	"github.com/datawire/matrixci/pkg/secrets"
)

// keyFromFlag resolves a command's secrets key: an explicit --key-file wins,
// then the MATRIXCI_KEY_FILE environment variable.  With neither set the key
// is nil, which leaves `secure:` values sealed.
func keyFromFlag(path string) ([]byte, error) {
	if path == "" {
		path = os.Getenv("MATRIXCI_KEY_FILE")
	}
	if path == "" {
		return nil, nil
	}
	return secrets.ReadKeyFile(path)
}

// envString renders variables as one shell-style row, quoting as needed.
// The result round-trips through pipeline.ParseVars.
func envString(vars []pipeline.Var) string {
	words := make([]string, 0, len(vars))
	for _, v := range vars {
		words = append(words, v.String())
	}
	return shellquote.Join(words...)
}

// describeJob renders one matrix cell the way job listings and build
// summaries show it.
func describeJob(job pipeline.Job) string {
	parts := []string{fmt.Sprintf("#%d", job.Number)}
	if job.Python != "" {
		parts = append(parts, "python="+job.Python)
	}
	if len(job.Env) > 0 {
		parts = append(parts, envString(job.Env))
	}
	return strings.Join(parts, " ")
}

// shortCommit trims a full commit hash down to the familiar 7 characters.
func shortCommit(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
