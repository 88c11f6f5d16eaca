// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package sdist builds Python source distributions by driving the package's
// own `setup.py sdist`, and describes the resulting artifacts the way a
// package index wants them described.
package sdist

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/matrixci/pkg/pyversion"
)

// Artifact is one built distribution file.
type Artifact struct {
	Path     string
	Filename string
	// Name is the distribution name as spelled in the filename.
	Name    string
	Version pyversion.Version
	Size    int64
	// Digests as lowercase hex, as the legacy upload API takes them.
	MD5    string
	SHA256 string
}

// ParseFilename splits an sdist filename ("abopt-1.0.2.tar.gz") into the
// distribution name and version.  The version is whatever follows the last
// dash; distribution names may themselves contain dashes, versions may not.
func ParseFilename(filename string) (string, *pyversion.Version, error) {
	stem := filename
	switch {
	case strings.HasSuffix(stem, ".tar.gz"):
		stem = strings.TrimSuffix(stem, ".tar.gz")
	case strings.HasSuffix(stem, ".zip"):
		stem = strings.TrimSuffix(stem, ".zip")
	default:
		return "", nil, fmt.Errorf("not an sdist filename: %q", filename)
	}
	name, verStr, ok := cutLast(stem, "-")
	if !ok {
		return "", nil, fmt.Errorf("no version in sdist filename: %q", filename)
	}
	ver, err := pyversion.Parse(verStr)
	if err != nil {
		return "", nil, fmt.Errorf("sdist filename %q: %w", filename, err)
	}
	return name, ver, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

// FromFile describes an existing distribution file: filename parse plus
// digests.
func FromFile(path string) (*Artifact, error) {
	filename := filepath.Base(path)
	name, ver, err := ParseFilename(filename)
	if err != nil {
		return nil, err
	}
	art := &Artifact{
		Path:     path,
		Filename: filename,
		Name:     name,
		Version:  *ver,
	}
	if err := art.digest(); err != nil {
		return nil, err
	}
	return art, nil
}

func (art *Artifact) digest() (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}
	file, err := os.Open(art.Path)
	if err != nil {
		return err
	}
	defer func() { maybeSetErr(file.Close()) }()

	var md5er, sha256er hash.Hash = md5.New(), sha256.New()
	size, err := io.Copy(io.MultiWriter(md5er, sha256er), file)
	if err != nil {
		return err
	}
	art.Size = size
	art.MD5 = hex.EncodeToString(md5er.Sum(nil))
	art.SHA256 = hex.EncodeToString(sha256er.Sum(nil))
	return nil
}

// Build runs `setup.py sdist` in dir with the given interpreter ("" picks
// python3 or python off the PATH) and returns the one artifact it built,
// left at dir/dist/.  The build gets a pinned SOURCE_DATE_EPOCH so that
// building the same commit twice yields the same tarball.
func Build(ctx context.Context, dir, python string) (*Artifact, error) {
	exe, err := resolvePython(python)
	if err != nil {
		return nil, err
	}

	// a throwaway --dist-dir keeps stale artifacts in dist/ from being
	// mistaken for this build's output
	tmpdir, err := os.MkdirTemp(dir, ".sdist-")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = os.RemoveAll(tmpdir)
	}()

	cmd := dexec.CommandContext(ctx, exe, "setup.py", "sdist", "--dist-dir", tmpdir)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"SOURCE_DATE_EPOCH="+strconv.FormatInt(BuildTime().Unix(), 10))
	if err := cmd.Run(); err != nil {
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

	return FromFile(path)
}

func resolvePython(python string) (string, error) {
	if python != "" {
		return dexec.LookPath(python)
	}
	for _, candidate := range []string{"python3", "python"} {
		if exe, err := dexec.LookPath(candidate); err == nil {
			return exe, nil
		}
	}
	return "", fmt.Errorf("no python interpreter on PATH")
}
