// Package version implements version specifiers and their resolution
// against a release index.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SpecKind tags the variants of a version specifier.
type SpecKind int

const (
	// KindLatest selects the highest available version.
	KindLatest SpecKind = iota
	// KindExact selects one fully-specified version.
	KindExact
	// KindMajor selects the highest version within a major line.
	KindMajor
	// KindMajorMinor selects the highest version within a minor line.
	KindMajorMinor
)

// Spec is a parsed, immutable version specifier.
type Spec struct {
	kind  SpecKind
	major uint64
	minor uint64
	patch uint64
}

// Latest selects the highest available version.
var Latest = Spec{kind: KindLatest}

// Exact constructs a fully-specified version specifier.
func Exact(major, minor, patch uint64) Spec {
	return Spec{kind: KindExact, major: major, minor: minor, patch: patch}
}

// LatestInMajor constrains resolution to one major line.
func LatestInMajor(major uint64) Spec {
	return Spec{kind: KindMajor, major: major}
}

// LatestInMajorMinor constrains resolution to one minor line.
func LatestInMajorMinor(major, minor uint64) Spec {
	return Spec{kind: KindMajorMinor, major: major, minor: minor}
}

// Kind returns the specifier variant.
func (s Spec) Kind() SpecKind { return s.kind }

// Parse reads a user-supplied specifier. Accepted forms:
//
//	"latest" or ""  highest available version
//	"17"            highest 17.x.y
//	"17.2"          highest 17.2.y
//	"17.2.1"        exactly 17.2.1
//	"=17.2.1"       exactly 17.2.1
func Parse(input string) (Spec, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || strings.EqualFold(trimmed, "latest") {
		return Latest, nil
	}

	exact := false
	if strings.HasPrefix(trimmed, "=") {
		exact = true
		trimmed = strings.TrimPrefix(trimmed, "=")
	}
	trimmed = strings.TrimPrefix(trimmed, "v")

	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return Spec{}, fmt.Errorf("invalid version specifier %q: too many components", input)
	}

	nums := make([]uint64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Spec{}, fmt.Errorf("invalid version specifier %q: component %q is not a number", input, p)
		}
		nums[i] = n
	}

	switch len(nums) {
	case 1:
		if exact {
			return Spec{}, fmt.Errorf("invalid version specifier %q: exact form requires major.minor.patch", input)
		}
		return LatestInMajor(nums[0]), nil
	case 2:
		if exact {
			return Spec{}, fmt.Errorf("invalid version specifier %q: exact form requires major.minor.patch", input)
		}
		return LatestInMajorMinor(nums[0], nums[1]), nil
	default:
		return Exact(nums[0], nums[1], nums[2]), nil
	}
}

// String renders the specifier in its canonical parse form.
func (s Spec) String() string {
	switch s.kind {
	case KindLatest:
		return "latest"
	case KindMajor:
		return strconv.FormatUint(s.major, 10)
	case KindMajorMinor:
		return fmt.Sprintf("%d.%d", s.major, s.minor)
	default:
		return fmt.Sprintf("%d.%d.%d", s.major, s.minor, s.patch)
	}
}

// Matches reports whether a concrete version satisfies the specifier's
// constraint (ignoring the "highest" selection rule).
func (s Spec) Matches(v *semver.Version) bool {
	switch s.kind {
	case KindLatest:
		return true
	case KindMajor:
		return v.Major() == s.major
	case KindMajorMinor:
		return v.Major() == s.major && v.Minor() == s.minor
	default:
		// A prerelease build is not the release it precedes.
		return v.Major() == s.major && v.Minor() == s.minor && v.Patch() == s.patch &&
			v.Prerelease() == ""
	}
}
