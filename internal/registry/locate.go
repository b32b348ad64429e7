package registry

import (
	"sort"
	"strings"

	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/platform"
)

// libcPreference is the fixed selection order among libc variants when
// the target does not pin one. The statically-linked musl build is the
// most portable, so it wins over the glibc build.
var libcPreference = [...]string{"musl", "gnu"}

// Locate selects the release asset matching the target platform.
// Matching is exact on (OS, arch). The libc component is a preference,
// not a filter: the target's own variant is tried first, then the
// remaining variants in libcPreference order. A musl build runs on a
// glibc host, so a missing preferred variant is not a failure as long
// as the machine matches.
func Locate(rel *Release, target platform.Triple) (Asset, error) {
	if asset, ok := rel.Assets[target]; ok {
		return asset, nil
	}

	for _, libc := range libcPreference {
		if libc == target.Libc {
			continue
		}
		candidate := platform.Triple{OS: target.OS, Arch: target.Arch, Libc: libc}
		if asset, ok := rel.Assets[candidate]; ok {
			return asset, nil
		}
	}

	return Asset{}, fault.New(fault.KindUnsupportedPlatform, locateStage,
		"release %s has no asset for %s (available: %s)",
		rel.Version, target, availablePlatforms(rel))
}

func availablePlatforms(rel *Release) string {
	names := make([]string, 0, len(rel.Assets))
	for triple := range rel.Assets {
		names = append(names, triple.String())
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
