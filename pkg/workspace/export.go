// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/datawire/dlib/dexec"
)

// Export materializes a copy of the project source tree at dst.  For a git
// checkout this is `git archive HEAD`, so the copy contains exactly the
// committed tree; for anything else it is a filesystem copy minus the
// engine's own state directory.
func (w *Workspace) Export(ctx context.Context, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	if w.isGitTree(ctx) {
		return w.exportGit(ctx, dst)
	}
	return w.exportCopy(dst)
}

// isGitTree reports whether the project root is a git checkout with at least
// one commit; `git archive HEAD` needs both.
func (w *Workspace) isGitTree(ctx context.Context) bool {
	cmd := dexec.CommandContext(ctx, "git", "rev-parse", "--verify", "--quiet", "HEAD")
	cmd.Dir = w.root
	return cmd.Run() == nil
}

func (w *Workspace) exportGit(ctx context.Context, dst string) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}

	cmd := dexec.CommandContext(ctx, "git", "archive", "--format=tar", "HEAD")
	cmd.Dir = w.root
	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	defer func() {
		// drain so that git can finish even if extraction bailed early
		_, _ = io.Copy(io.Discard, pipe)
		maybeSetErr(cmd.Wait())
	}()
	return untarInto(dst, pipe)
}

func untarInto(dst string, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		name := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(name) {
			return fmt.Errorf("archive member escapes the export dir: %q", hdr.Name)
		}
		path := filepath.Join(dst, name)
		switch hdr.Typeflag {
		case tar.TypeXGlobalHeader:
			// git archive emits one, carrying the commit ID
		case tar.TypeDir:
			if err := os.MkdirAll(path, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, path); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported archive member type %q: %q", hdr.Typeflag, hdr.Name)
		}
	}
}

func writeFile(path string, r io.Reader, mode os.FileMode) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() { maybeSetErr(file.Close()) }()
	_, err = io.Copy(file, r)
	return err
}

func (w *Workspace) exportCopy(dst string) error {
	return filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() && (d.Name() == StateDirName || d.Name() == ".git") {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)
		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			// sockets and devices are not part of a source tree
			return nil
		}
	})
}

func copyFile(src, dst string) (err error) {
	maybeSetErr := func(_err error) {
		if _err != nil && err == nil {
			err = _err
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { maybeSetErr(in.Close()) }()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() { maybeSetErr(out.Close()) }()
	_, err = io.Copy(out, in)
	return err
}
