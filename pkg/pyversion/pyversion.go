// Copyright (C) 2025  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package pyversion implements PEP 440 version identifiers: parsing with the
// normalizations that the PEP requires, canonical-form rendering, and
// ordering.
//
// Only the version scheme itself is implemented.  Version specifiers (the
// "~=", "==" and friends clauses) are not needed for deciding whether a git
// tag and a declared package version agree, or for ordering a release
// listing.
package pyversion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/intstr"
)

// Version is a parsed PEP 440 version identifier, separated into its up to
// six segments:
//
//	[N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local]
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	// Local holds the dot-separated segments of the local version label.
	// A segment that consists entirely of ASCII digits is numeric; numeric
	// segments order by value and after alphanumeric ones.
	Local []intstr.IntOrString
}

// PreRelease is the pre-release segment: a phase letter plus a number, as in
// "1.0rc2".
type PreRelease struct {
	Phase string // "a", "b", or "rc"; Parse folds the alternate spellings
	N     int
}

// reVersion is the permissive pattern from PEP 440 Appendix B (as defined by
// the pypa "packaging" project), which accepts every alternate spelling that
// the PEP's normalization rules cover.
var reVersion = regexp.MustCompile(`(?i)^\s*v?` +
	`(?:(?P<epoch>[0-9]+)!)?` +
	`(?P<release>[0-9]+(?:\.[0-9]+)*)` +
	`(?:[-_\.]?(?P<preL>a|b|c|rc|alpha|beta|pre|preview)[-_\.]?(?P<preN>[0-9]+)?)?` +
	`(?:(?:-(?P<postN1>[0-9]+))|(?:[-_\.]?(?P<postL>post|rev|r)[-_\.]?(?P<postN2>[0-9]+)?))?` +
	`(?P<dev>[-_\.]?dev[-_\.]?(?P<devN>[0-9]+)?)?` +
	`(?:\+(?P<local>[a-z0-9]+(?:[-_\.][a-z0-9]+)*))?` +
	`\s*$`)

//nolint:gochecknoglobals // Would be 'const'.
var preAliases = map[string]string{
	"a": "a", "alpha": "a",
	"b": "b", "beta": "b",
	"rc": "rc", "c": "rc", "pre": "rc", "preview": "rc",
}

// number converts an optional digits-only match group, with the implicit
// value 0 when the group is absent ("1.2a" means "1.2a0").
func number(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// Parse parses a version identifier, folding the alternate spellings that
// the PEP permits (case, separators, "alpha"/"c"/"rev"/..., a leading "v",
// surrounding whitespace) into their canonical forms.
func Parse(str string) (*Version, error) {
	m := reVersion.FindStringSubmatch(str)
	if m == nil {
		return nil, fmt.Errorf("pyversion: invalid version: %q", str)
	}
	group := func(name string) string {
		return m[reVersion.SubexpIndex(name)]
	}

	var ver Version
	var err error

	if ver.Epoch, err = number(group("epoch")); err != nil {
		return nil, fmt.Errorf("pyversion: epoch: %w", err)
	}
	for _, seg := range strings.Split(group("release"), ".") {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return nil, fmt.Errorf("pyversion: release: %w", err)
		}
		ver.Release = append(ver.Release, n)
	}
	if l := strings.ToLower(group("preL")); l != "" {
		n, err := number(group("preN"))
		if err != nil {
			return nil, fmt.Errorf("pyversion: pre-release: %w", err)
		}
		ver.Pre = &PreRelease{Phase: preAliases[l], N: n}
	}
	// The post-release matches either as "-N" (the implicit spelling) or as
	// a "post"/"rev"/"r" signifier with an optional number; at most one of
	// the two number groups is non-empty.
	if group("postL") != "" || group("postN1") != "" {
		n, err := number(group("postN1") + group("postN2"))
		if err != nil {
			return nil, fmt.Errorf("pyversion: post-release: %w", err)
		}
		ver.Post = &n
	}
	if group("dev") != "" {
		n, err := number(group("devN"))
		if err != nil {
			return nil, fmt.Errorf("pyversion: dev-release: %w", err)
		}
		ver.Dev = &n
	}
	if local := group("local"); local != "" {
		segs := strings.FieldsFunc(local, func(r rune) bool {
			return r == '-' || r == '_' || r == '.'
		})
		for _, seg := range segs {
			ver.Local = append(ver.Local, intstr.Parse(strings.ToLower(seg)))
		}
	}

	return &ver, nil
}

// Normalize parses str and re-renders it in canonical form.
func Normalize(str string) (string, error) {
	ver, err := Parse(str)
	if err != nil {
		return "", err
	}
	return ver.String(), nil
}

// String implements fmt.Stringer, rendering the canonical form.  Parse
// canonicalizes as it goes, so for any parsed version this is the normalized
// identifier.
func (v Version) String() string {
	var ret strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&ret, "%d!", v.Epoch)
	}
	for i, n := range v.Release {
		if i > 0 {
			ret.WriteByte('.')
		}
		fmt.Fprintf(&ret, "%d", n)
	}
	if v.Pre != nil {
		fmt.Fprintf(&ret, "%s%d", v.Pre.Phase, v.Pre.N)
	}
	if v.Post != nil {
		fmt.Fprintf(&ret, ".post%d", *v.Post)
	}
	if v.Dev != nil {
		fmt.Fprintf(&ret, ".dev%d", *v.Dev)
	}
	for i, seg := range v.Local {
		if i == 0 {
			ret.WriteByte('+')
		} else {
			ret.WriteByte('.')
		}
		ret.WriteString(seg.String())
	}
	return ret.String()
}

// Public returns the version without its local label.  Public index servers
// reject local version identifiers, so upload checks compare against this
// form.
func (v Version) Public() Version {
	v.Local = nil
	return v
}

// IsFinal reports whether the version is a final release: nothing but an
// epoch and a release segment.
func (v Version) IsFinal() bool {
	return v.Pre == nil && v.Post == nil && v.Dev == nil && len(v.Local) == 0
}

// IsPreRelease reports whether installation tools should hide the version
// unless pre-releases were asked for.
func (v Version) IsPreRelease() bool {
	return v.Pre != nil || v.Dev != nil
}

// releaseSegment zero-pads: "1.0" and "1.0.0" have the same segments.
func (v Version) releaseSegment(i int) int {
	if i < len(v.Release) {
		return v.Release[i]
	}
	return 0
}

// phaseRank encodes the suffix ordering within one release number:
//
//	.devN < aN < bN < rcN < <no suffix> < .postN
//
// A bare .devN sorts before any pre-release, which is expressed by ranking
// it below the alphabetical phases; a .devN attached to a pre- or
// post-release is handled by the later comparison stages instead.
func (v Version) phaseRank() int {
	switch {
	case v.Pre != nil:
		switch v.Pre.Phase {
		case "a":
			return -3
		case "b":
			return -2
		default: // "rc"
			return -1
		}
	case v.Post == nil && v.Dev != nil:
		return -4
	default:
		return 0
	}
}

func cmpPre(a, b Version) int {
	if d := a.phaseRank() - b.phaseRank(); d != 0 {
		return d
	}
	var aN, bN int
	if a.Pre != nil {
		aN = a.Pre.N
	}
	if b.Pre != nil {
		bN = b.Pre.N
	}
	return aN - bN
}

// cmpPost orders an absent post-release before .post0.
func cmpPost(a, b *int) int {
	aN, bN := -1, -1
	if a != nil {
		aN = *a
	}
	if b != nil {
		bN = *b
	}
	return aN - bN
}

// cmpDev orders .devN before the release it leads up to, so an absent dev
// segment sorts last.
func cmpDev(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	default:
		return *a - *b
	}
}

func cmpLocalSegment(a, b intstr.IntOrString) int {
	switch {
	case a.Type == intstr.Int && b.Type == intstr.Int:
		return int(a.IntVal - b.IntVal)
	case a.Type == intstr.Int:
		return 1
	case b.Type == intstr.Int:
		return -1
	default:
		return strings.Compare(a.StrVal, b.StrVal)
	}
}

// cmpLocal compares segment-wise; when one label is a prefix of the other,
// the one with more segments is greater.
func cmpLocal(a, b []intstr.IntOrString) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if d := cmpLocalSegment(a[i], b[i]); d != 0 {
			return d
		}
	}
	return len(a) - len(b)
}

// Cmp returns a number < 0 if version 'v' is less than version 'o', > 0 if
// 'v' is greater than 'o', or 0 if they are equal.  This is similar to the
// C-language strcmp; only the sign is defined, the magnitude may be
// anything.
func (v Version) Cmp(o Version) int {
	if d := v.Epoch - o.Epoch; d != 0 {
		return d
	}
	for i := 0; i < len(v.Release) || i < len(o.Release); i++ {
		if d := v.releaseSegment(i) - o.releaseSegment(i); d != 0 {
			return d
		}
	}
	if d := cmpPre(v, o); d != 0 {
		return d
	}
	if d := cmpPost(v.Post, o.Post); d != 0 {
		return d
	}
	if d := cmpDev(v.Dev, o.Dev); d != 0 {
		return d
	}
	return cmpLocal(v.Local, o.Local)
}

// Equal reports whether the two versions are equivalent under the PEP's
// ordering; "1.0", "1.0.0", and "v1.0" are all equal.
func (v Version) Equal(o Version) bool {
	return v.Cmp(o) == 0
}
