package version

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// SortDescending orders versions highest first, in place.
func SortDescending(vs []*semver.Version) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].GreaterThan(vs[j]) })
}
