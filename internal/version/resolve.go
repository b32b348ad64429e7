package version

import (
	"github.com/Masterminds/semver/v3"

	"github.com/embedpg/embedpg/internal/fault"
)

const stage = "resolve"

// ResolveOptions adjust resolution behavior.
type ResolveOptions struct {
	// IncludePrerelease admits prerelease versions into selection.
	// By default they are skipped.
	IncludePrerelease bool
}

// Resolve selects exactly one concrete version from the index's
// version list. Selection is deterministic: semantic-version ordering
// (numeric per component, never lexical), highest match wins. Versions
// are unique in the index so ties cannot occur.
func Resolve(spec Spec, available []*semver.Version, opts ResolveOptions) (*semver.Version, error) {
	if len(available) == 0 {
		return nil, fault.New(fault.KindNoReleasesAvailable, stage, "release index is empty")
	}

	var best *semver.Version
	for _, v := range available {
		if v.Prerelease() != "" && !opts.IncludePrerelease && spec.Kind() != KindExact {
			continue
		}
		if !spec.Matches(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}

	if best == nil {
		if spec.Kind() == KindLatest {
			return nil, fault.New(fault.KindNoReleasesAvailable, stage,
				"no selectable releases in index (%d total)", len(available))
		}
		return nil, fault.New(fault.KindVersionNotFound, stage,
			"no release matches %s", spec)
	}
	return best, nil
}
