package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/matrixci/pkg/testutil"
	"github.com/datawire/matrixci/pkg/workspace"
)

func TestOpenLayout(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ws, err := workspace.Open(root)
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(root, ".matrixci", "builds"))
	assert.Equal(t, filepath.Join(root, ".matrixci", "builds", "b1"), ws.BuildDir("b1"))
	assert.Equal(t, filepath.Join(root, ".matrixci", "builds", "b1", "job-3"), ws.JobDir("b1", 3))
}

func TestLockExcludes(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	root := t.TempDir()

	ws1, err := workspace.Open(root)
	require.NoError(t, err)
	require.NoError(t, ws1.Lock(ctx))
	defer func() { assert.NoError(t, ws1.Unlock()) }()

	ws2, err := workspace.Open(root)
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
	defer cancel()
	assert.Error(t, ws2.Lock(waitCtx), "second run over the same checkout must wait")
}

func TestLockReleases(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	root := t.TempDir()

	ws1, err := workspace.Open(root)
	require.NoError(t, err)
	require.NoError(t, ws1.Lock(ctx))
	require.NoError(t, ws1.Unlock())

	ws2, err := workspace.Open(root)
	require.NoError(t, err)
	require.NoError(t, ws2.Lock(ctx))
	assert.NoError(t, ws2.Unlock())
}

func TestExportCopy(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "abopt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "abopt", "version.py"), []byte("version = \"1.0.2\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "setup.py"), []byte("#!/usr/bin/env python\n"), 0o755))

	ws, err := workspace.Open(root)
	require.NoError(t, err)

	dst := ws.JobDir("b1", 1)
	require.NoError(t, ws.Export(ctx, dst))

	assert.FileExists(t, filepath.Join(dst, "abopt", "version.py"))
	info, err := os.Stat(filepath.Join(dst, "setup.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.NoDirExists(t, filepath.Join(dst, ".matrixci"), "engine state must not leak into exports")

	require.NoError(t, ws.Cleanup("b1"))
	assert.NoDirExists(t, ws.BuildDir("b1"))
}

func TestExportGit(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	if _, err := dexec.LookPath("git"); err != nil {
		t.Skip("no git executable")
	}

	root := t.TempDir()
	git := func(args ...string) {
		t.Helper()
		cmd := dexec.CommandContext(ctx, "git", args...)
		cmd.Dir = root
		require.NoError(t, cmd.Run())
	}
	git("init", "--quiet")
	require.NoError(t, os.WriteFile(filepath.Join(root, "committed.py"), []byte("version = \"1.0\"\n"), 0o644))
	git("add", "committed.py")
	git("-c", "user.name=ci", "-c", "user.email=ci@localhost", "commit", "--quiet", "-m", "initial")
	require.NoError(t, os.WriteFile(filepath.Join(root, "uncommitted.py"), []byte("pass\n"), 0o644))

	ws, err := workspace.Open(root)
	require.NoError(t, err)
	dst := ws.JobDir("b1", 1)
	require.NoError(t, ws.Export(ctx, dst))

	assert.FileExists(t, filepath.Join(dst, "committed.py"))
	assert.NoFileExists(t, filepath.Join(dst, "uncommitted.py"),
		"a git export is the committed tree, not the dirty one")
}

func TestExportIsolation(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.txt"), []byte("original"), 0o644))

	ws, err := workspace.Open(root)
	require.NoError(t, err)
	dst1 := ws.JobDir("b1", 1)
	dst2 := ws.JobDir("b1", 2)
	require.NoError(t, ws.Export(ctx, dst1))
	require.NoError(t, ws.Export(ctx, dst2))

	// a write in one job tree is invisible to the other and to the original
	require.NoError(t, os.WriteFile(filepath.Join(dst1, "data.txt"), []byte("mutated"), 0o644))
	for _, path := range []string{filepath.Join(dst2, "data.txt"), filepath.Join(root, "data.txt")} {
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))
	}
}

func TestExportFidelity(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "abopt", "testcases"), 0o755))
	files := map[string]string{
		"setup.py":                  "#!/usr/bin/env python\n",
		"abopt/__init__.py":         "",
		"abopt/version.py":          "version = \"1.0.2\"\n",
		"abopt/testcases/data.json": "{\"rows\": [1, 2, 3]}\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	require.NoError(t, os.Chmod(filepath.Join(root, "setup.py"), 0o755))

	ws, err := workspace.Open(root)
	require.NoError(t, err)
	dst := ws.JobDir("b1", 1)
	require.NoError(t, ws.Export(ctx, dst))

	// modes, sizes, and contents all make the round trip
	testutil.AssertEqualTrees(t, root, dst, workspace.StateDirName)
}
