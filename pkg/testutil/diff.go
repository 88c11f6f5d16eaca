// Package testutil holds assertion helpers for tests whose expected and
// actual values are too large for a one-line failure message.
package testutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/tabwriter"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

var spewConfig = spew.ConfigState{
	Indent:                  "  ",
	DisableMethods:          true,
	DisableCapacities:       true,
	DisablePointerAddresses: true,
	SortKeys:                true,
}

// DumpTreeListing renders the directory tree at root as a stable listing of
// mode, size, and relative path.  Entries named in skip are pruned at any
// depth; use it for state directories that live inside the tree being
// compared.
func DumpTreeListing(root string, skip ...string) (str string, err error) {
	ret := new(strings.Builder)
	table := tabwriter.NewWriter(
		ret, // output
		0,   // minwidth
		1,   // tabwidth
		1,   // padding
		' ', // padchar
		0)   // flags

	err = walkTree(root, skip, func(rel string, info fs.FileInfo) error {
		size := ""
		if info.Mode().IsRegular() {
			size = fmt.Sprintf("% 10d", info.Size())
		}
		_, err := fmt.Fprintln(table, strings.Join([]string{
			"",
			info.Mode().String(),
			size,
			rel,
		}, "\t"))
		return err
	})
	if err != nil {
		return "", err
	}
	if err := table.Flush(); err != nil {
		return "", err
	}
	return ret.String(), nil
}

// DumpTreeFull is DumpTreeListing plus the content of every regular file.
func DumpTreeFull(root string, skip ...string) (str string, err error) {
	ret := new(strings.Builder)
	err = walkTree(root, skip, func(rel string, info fs.FileInfo) error {
		if _, err := fmt.Fprintf(ret, "entry = %q %s\n", rel, info.Mode()); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		content, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(ret, "content =%s", spewConfig.Sdump(content))
		return err
	})
	if err != nil {
		return "", err
	}
	return ret.String(), nil
}

func walkTree(root string, skip []string, visit func(rel string, info fs.FileInfo) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		for _, name := range skip {
			if d.Name() == name {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return visit(filepath.ToSlash(rel), info)
	})
}

// AssertEqualTrees compares two directory trees.  It compares the listings
// first, to fail fast with readable output, and only then the file contents.
func AssertEqualTrees(t *testing.T, exp, act string, skip ...string) bool {
	t.Helper()

	expStr, err := DumpTreeListing(exp, skip...)
	if err != nil {
		t.Errorf("error dumping expected tree listing: %v", err)
		return false
	}
	actStr, err := DumpTreeListing(act, skip...)
	if err != nil {
		t.Errorf("error dumping actual tree listing: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Listing diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}

	expStr, err = DumpTreeFull(exp, skip...)
	if err != nil {
		t.Errorf("error dumping expected tree: %v", err)
		return false
	}
	actStr, err = DumpTreeFull(act, skip...)
	if err != nil {
		t.Errorf("error dumping actual tree: %v", err)
		return false
	}
	if expStr != actStr {
		t.Errorf("Full diff:\n%s", unifiedDiff(expStr, actStr))
		return false
	}

	return true
}

func unifiedDiff(exp, act string) string {
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(exp),
		B:        difflib.SplitLines(act),
		FromFile: "Expected",
		FromDate: "",
		ToFile:   "Actual",
		ToDate:   "",
		Context:  1,
	})
	return diff
}
