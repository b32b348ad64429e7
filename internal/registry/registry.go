// Package registry fetches the release index from the GitHub
// repository that publishes PostgreSQL binary archives, and locates
// the asset matching a target platform within a release.
//
// Assets are named postgresql-<version>-<target-triple>.tar.gz with a
// sibling <name>.sha256 asset carrying the content digest.
package registry

import (
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/embedpg/embedpg/internal/platform"
)

// Asset describes one downloadable, platform-specific archive.
type Asset struct {
	// Platform is the target this archive was built for.
	Platform platform.Triple

	// Name is the asset filename as published.
	Name string

	// DownloadURL is the direct HTTPS URL of the archive payload.
	DownloadURL string

	// HashURL is the URL of the sibling .sha256 digest asset. Empty
	// when the registry published no digest for this archive.
	HashURL string
}

// Release is one published, immutable version of the distribution.
type Release struct {
	// Version is the release's semantic version.
	Version *semver.Version

	// PublishedAt is the registry's publish timestamp.
	PublishedAt time.Time

	// Assets maps each supported platform to its archive. The map key
	// structurally enforces at most one asset per platform.
	Assets map[platform.Triple]Asset
}

// Index is the fetched release list for one logical operation. It is
// not shared or refreshed across operations.
type Index struct {
	releases map[string]*Release
	versions []*semver.Version
}

// Versions returns every version in the index, in fetch order.
func (idx *Index) Versions() []*semver.Version {
	return idx.versions
}

// Release returns the release for an exact version.
func (idx *Index) Release(v *semver.Version) (*Release, bool) {
	r, ok := idx.releases[v.String()]
	return r, ok
}

// Len returns the number of releases in the index.
func (idx *Index) Len() int {
	return len(idx.releases)
}

func newIndex() *Index {
	return &Index{releases: make(map[string]*Release)}
}

// add records a release, keeping the first occurrence of a version.
func (idx *Index) add(r *Release) {
	key := r.Version.String()
	if _, exists := idx.releases[key]; exists {
		return
	}
	idx.releases[key] = r
	idx.versions = append(idx.versions, r.Version)
}

// parseAssetTriple extracts the target triple from an asset filename
// like "postgresql-16.4.0-x86_64-unknown-linux-gnu.tar.gz".
func parseAssetTriple(name, version string) (platform.Triple, bool) {
	prefix := "postgresql-" + version + "-"
	if !strings.HasPrefix(name, prefix) {
		return platform.Triple{}, false
	}
	rest := strings.TrimPrefix(name, prefix)
	for _, ext := range []string{".tar.gz", ".tgz", ".zip"} {
		if strings.HasSuffix(rest, ext) {
			return platform.ParseTargetTriple(strings.TrimSuffix(rest, ext))
		}
	}
	return platform.Triple{}, false
}
