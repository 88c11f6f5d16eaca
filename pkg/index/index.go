// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package index is a client for Python package indexes: the legacy upload
// API (the protocol twine speaks), plus the release-listing halves of the
// PEP 503 simple API and the JSON API, which deployment uses to decide
// whether a version is already out there.
package index

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// PyPI's standard endpoints.  PyPI splits uploads onto their own host;
// private indexes usually hang all three off one root.
const (
	PyPIUploadURL = "https://upload.pypi.org/legacy/"
	PyPISimpleURL = "https://pypi.org/simple/"
	PyPIJSONURL   = "https://pypi.org/pypi/"
)

type Client struct {
	// UploadURL is the legacy upload endpoint (what deploy `server:`
	// configures).  Defaults to PyPI's.
	UploadURL string
	// SimpleURL is the root of the PEP 503 simple API.  When empty it is
	// derived from UploadURL for single-host indexes, else PyPI's.
	SimpleURL string
	// JSONURL is the root of the JSON API ("<root>/<pkg>/json").  Same
	// defaulting as SimpleURL.
	JSONURL string

	// Username/Password authenticate uploads (and, when set, queries;
	// private indexes tend to want auth everywhere).
	Username string
	Password string

	HTTPClient *http.Client
	UserAgent  string
}

func (c *Client) fillDefaults() {
	if c.UploadURL == "" {
		c.UploadURL = PyPIUploadURL
	}
	root, singleHost := strings.CutSuffix(strings.TrimSuffix(c.UploadURL, "/"), "/legacy")
	if c.SimpleURL == "" {
		if singleHost && c.UploadURL != PyPIUploadURL {
			c.SimpleURL = root + "/simple/"
		} else {
			c.SimpleURL = PyPISimpleURL
		}
	}
	if c.JSONURL == "" {
		if singleHost && c.UploadURL != PyPIUploadURL {
			c.JSONURL = root + "/pypi/"
		} else {
			c.JSONURL = PyPIJSONURL
		}
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.UserAgent == "" {
		c.UserAgent = "github.com/datawire/matrixci/pkg/index"
	}
}

type HTTPError struct {
	Status     string
	StatusCode int
	// Detail is the index's explanation, when it gave one; upload
	// rejections carry the reason here.
	Detail string
}

func (e *HTTPError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("HTTP %s", e.Status)
}

// NotFound reports whether err is an HTTP 404 from the index.
func NotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// get fetches requestURL, and when the URL carries a checksum fragment
// (`#sha256=...`, as PEP 503 file links do) verifies the body against it.
func (c Client) get(ctx context.Context, requestURL string) (_ *url.URL, _ []byte, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("GET %q => %w", requestURL, err)
		}
	}()
	c.fillDefaults()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, nil, err
	}
	if err := resp.Body.Close(); err != nil {
		return nil, nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, nil, &HTTPError{Status: resp.Status, StatusCode: resp.StatusCode}
	}
	if u, err := url.Parse(requestURL); err == nil && u.Fragment != "" {
		if err := verifyFragment(u.Fragment, content); err != nil {
			return nil, nil, err
		}
	}

	return resp.Request.URL, content, nil
}

func verifyFragment(fragment string, content []byte) error {
	keyvals, err := url.ParseQuery(fragment)
	if err != nil {
		return nil //nolint:nilerr // not a checksum fragment, nothing to verify
	}
	for key, vals := range keyvals {
		var sum []byte
		switch key {
		case "md5":
			_sum := md5.Sum(content)
			sum = _sum[:]
		case "sha1":
			_sum := sha1.Sum(content)
			sum = _sum[:]
		case "sha224":
			_sum := sha256.Sum224(content)
			sum = _sum[:]
		case "sha256":
			_sum := sha256.Sum256(content)
			sum = _sum[:]
		case "sha384":
			_sum := sha512.Sum384(content)
			sum = _sum[:]
		case "sha512":
			_sum := sha512.Sum512(content)
			sum = _sum[:]
		default:
			continue
		}
		for _, val := range vals {
			if hex.EncodeToString(sum) != val {
				return fmt.Errorf("checksum mismatch: %s: expected=%s actual=%s",
					key, val, hex.EncodeToString(sum))
			}
		}
	}
	return nil
}

var reNormalize = regexp.MustCompile(`[-_.]+`)

// Normalize folds a distribution name to its PEP 503 comparison form: runs
// of `-`, `_`, and `.` become a single `-`, lowercased.
func Normalize(name string) string {
	return strings.ToLower(reNormalize.ReplaceAllLiteralString(name, "-"))
}
