package checktag_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/datawire/dlib/dlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/matrixci/pkg/checktag"
)

func writeVersionFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "version.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDeclaredVersion(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Content string
		Version string // empty for error
	}{
		"plain":          {`version = "1.0.2"`, "1.0.2"},
		"dunder":         {"__version__ = '0.0.17'\n", "0.0.17"},
		"first-wins":     {"version = \"1.0\"\nversion = \"2.0\"\n", "1.0"},
		"surrounded": {
			"\"\"\"Version info.\"\"\"\n\n# The release as uploaded\nversion = \"1.0.2\"  # bump me\n",
			"1.0.2",
		},
		"commented-out":  {"# version = \"9.9\"\nversion = '1.0'\n", "1.0"},
		"no-assignment":  {"print('hello')\n", ""},
		"unquoted-value": {"version = 1.0\n", ""},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			got, err := checktag.DeclaredVersion(writeVersionFile(t, tc.Content))
			if tc.Version == "" {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.Version, got)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		Declared string
		Tag      string
		OK       bool
	}{
		"match":            {"1.0.2", "1.0.2", true},
		"match-v-prefix":   {"1.0.2", "v1.0.2", true},
		"match-normalized": {"1.0rc1", "1.0.RC1", true},
		"untagged":         {"1.0.2", "", true},
		"mismatch":         {"1.0.2", "1.0.3", false},
		"mismatch-suffix":  {"1.0.2", "1.0.2.post0", false},
		"garbage-tag":      {"1.0.2", "release-candidate", false},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			ctx := dlog.NewTestContext(t, false)
			path := writeVersionFile(t, "version = \""+tc.Declared+"\"\n")
			err := checktag.Check(ctx, path, tc.Tag)
			if tc.OK {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCheckMissingFile(t *testing.T) {
	t.Parallel()
	ctx := dlog.NewTestContext(t, false)
	err := checktag.Check(ctx, filepath.Join(t.TempDir(), "nope.py"), "1.0")
	assert.Error(t, err)
}
