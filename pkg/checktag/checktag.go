// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package checktag enforces release hygiene: when a build's commit carries a
// tag, the tag must agree with the version that the package's source
// declares.  Publishing a tarball whose embedded version differs from the
// tag it was cut from is how package indexes end up with unexplainable
// releases.
package checktag

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/pyversion"
)

// reAssign matches the two assignment spellings Python version files use.
// RE2 has no backreferences, so matching quote pairs is spelled as an
// alternation.
var reAssign = regexp.MustCompile(`^\s*(?:__version__|version)\s*=\s*(?:"([^"]*)"|'([^']*)')\s*(?:#.*)?$`)

// DeclaredVersion extracts the version a Python source file declares,
// accepting `version = "..."` and `__version__ = '...'` assignments.  The
// first assignment wins.
func DeclaredVersion(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if m := reAssign.FindStringSubmatch(scanner.Text()); m != nil {
			return m[1] + m[2], nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("%s: no version assignment found", path)
}

// Check compares the version declared in path against the build tag.  An
// untagged build passes trivially.  A tagged build passes iff the tag and
// the declared version normalize to the same identifier, so "v1.0.2" tags
// "1.0.2" but "1.0.2" does not tag "1.0.2.post0".
func Check(ctx context.Context, path, tag string) error {
	declared, err := DeclaredVersion(path)
	if err != nil {
		return err
	}
	if tag == "" {
		dlog.Infof(ctx, "commit is untagged; not checking %s (declares %q)", path, declared)
		return nil
	}
	declaredNorm, err := pyversion.Normalize(declared)
	if err != nil {
		return fmt.Errorf("version %q declared in %s: %w", declared, path, err)
	}
	tagNorm, err := pyversion.Normalize(tag)
	if err != nil {
		return fmt.Errorf("tag %q: %w", tag, err)
	}
	if declaredNorm != tagNorm {
		return fmt.Errorf("tag %q does not match version %q declared in %s", tag, declared, path)
	}
	dlog.Infof(ctx, "tag %s matches %s (version %s)", tag, path, declaredNorm)
	return nil
}
