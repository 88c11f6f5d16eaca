// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/datawire/matrixci/pkg/pyversion"
	"github.com/datawire/matrixci/pkg/sdist"
)

// Releases lists the versions the index has for a package, oldest first.
// It prefers the JSON API and falls back to scraping the simple API on
// indexes that don't serve JSON.
func (c Client) Releases(ctx context.Context, pkgname string) ([]pyversion.Version, error) {
	c.fillDefaults()
	vers, err := c.releasesJSON(ctx, pkgname)
	if err != nil && NotFound(err) {
		return c.releasesSimple(ctx, pkgname)
	}
	return vers, err
}

// HasRelease reports whether the index already has the package at the given
// version.  A package the index doesn't know at all simply has no releases.
func (c Client) HasRelease(ctx context.Context, pkgname string, ver pyversion.Version) (bool, error) {
	vers, err := c.Releases(ctx, pkgname)
	if err != nil {
		if NotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, have := range vers {
		if have.Equal(ver) {
			return true, nil
		}
	}
	return false, nil
}

func (c Client) releasesJSON(ctx context.Context, pkgname string) ([]pyversion.Version, error) {
	if err := checkName(pkgname); err != nil {
		return nil, err
	}
	u, err := url.Parse(c.JSONURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, Normalize(pkgname), "json")
	_, body, err := c.get(ctx, u.String())
	if err != nil {
		return nil, err
	}

	releases := gjson.GetBytes(body, "releases")
	if !releases.Exists() {
		return nil, fmt.Errorf("JSON API response for %q has no releases", pkgname)
	}
	var vers []pyversion.Version
	releases.ForEach(func(key, _ gjson.Result) bool {
		// non-compliant versions in the index are skipped, per the PEP
		if ver, err := pyversion.Parse(key.String()); err == nil {
			vers = append(vers, *ver)
		}
		return true
	})
	sortVersions(vers)
	return vers, nil
}

func (c Client) releasesSimple(ctx context.Context, pkgname string) ([]pyversion.Version, error) {
	links, err := c.ListFiles(ctx, pkgname)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var vers []pyversion.Version
	for _, link := range links {
		// only sdist filenames carry an unambiguous version; other
		// file types on the page don't add any
		_, ver, err := sdist.ParseFilename(link.Text)
		if err != nil || seen[ver.String()] {
			continue
		}
		seen[ver.String()] = true
		vers = append(vers, *ver)
	}
	sortVersions(vers)
	return vers, nil
}

func sortVersions(vers []pyversion.Version) {
	sort.Slice(vers, func(i, j int) bool {
		return vers[i].Cmp(vers[j]) < 0
	})
}
