// Package embedpg acquires PostgreSQL binary distributions. A version
// request like "latest" or "17.2" is resolved against the release
// registry, the matching archive for the target platform is
// downloaded, verified against its published SHA-256 digest, cached,
// and extracted into a local directory.
package embedpg

import (
	"os"

	"github.com/embedpg/embedpg/internal/cache"
	"github.com/embedpg/embedpg/internal/config"
	"github.com/embedpg/embedpg/internal/download"
	"github.com/embedpg/embedpg/internal/log"
	"github.com/embedpg/embedpg/internal/platform"
	"github.com/embedpg/embedpg/internal/registry"
	"github.com/embedpg/embedpg/internal/userconfig"
)

// Latest requests the highest released version.
const Latest = "latest"

// Options adjust acquisition behavior. The zero value resolves for the
// host platform with caching enabled.
type Options struct {
	// Registry overrides the release registry, as "owner/repo".
	// Defaults to the user configuration, then the public registry.
	Registry string

	// OS, Arch and Libc override the corresponding host platform
	// component. OS and Arch use Go runtime names ("linux", "amd64").
	// Libc is "gnu" or "musl" and only meaningful on linux.
	OS   string
	Arch string
	Libc string

	// CacheDir overrides the archive cache location.
	CacheDir string

	// NoCache bypasses the archive cache entirely.
	NoCache bool

	// IncludePrerelease admits prerelease versions into resolution.
	IncludePrerelease bool

	// ShowProgress renders a download progress bar when stdout is a
	// terminal.
	ShowProgress bool

	// Test seams.
	registryOpts []registry.Option
	downloadOpts []download.Option
}

// Archive is a locally available, digest-checked distribution archive.
type Archive struct {
	// Version is the resolved concrete version, e.g. "17.2.0".
	Version string

	// Platform is the platform the archive was built for, e.g.
	// "linux/amd64/gnu".
	Platform string

	// AssetName is the archive filename as published.
	AssetName string

	// Path is the local archive file. Cache-owned when FromCache;
	// otherwise a temporary file released by Close.
	Path string

	// Digest is the hex SHA-256 of the archive.
	Digest string

	// Verified is false when the registry published no digest and the
	// content could not be checked against one.
	Verified bool

	// FromCache reports whether the archive was served from the local
	// cache without a download.
	FromCache bool

	ownedTemp bool
}

// Close releases the archive's backing file when it is a temporary
// download. Cached archives are left in place.
func (a *Archive) Close() error {
	if !a.ownedTemp {
		return nil
	}
	a.ownedTemp = false
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// pipeline holds the collaborators for one logical operation.
type pipeline struct {
	client *registry.Client
	store  *cache.Store // nil when caching is disabled
	target platform.Triple
	dl     *download.Downloader
	logger log.Logger
}

func newPipeline(opts *Options) (*pipeline, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := log.Default()

	cfg, err := config.Default()
	if err != nil {
		return nil, err
	}
	ucfg, err := userconfig.Load()
	if err != nil {
		return nil, err
	}

	repo := opts.Registry
	if repo == "" {
		repo = ucfg.Registry
	}

	client, err := registry.NewClient(repo, opts.registryOpts...)
	if err != nil {
		return nil, err
	}

	target := platform.Host()
	if opts.OS != "" {
		target.OS = opts.OS
	}
	if opts.Arch != "" {
		target.Arch = opts.Arch
	}
	if opts.Libc != "" {
		target.Libc = opts.Libc
	}
	if target.OS != "linux" {
		target.Libc = ""
	}

	var store *cache.Store
	if !opts.NoCache && ucfg.CacheEnabled {
		dir := opts.CacheDir
		if dir == "" {
			dir = cfg.CacheDir
		}
		store = cache.NewStore(dir, cache.WithLogger(logger))
	}

	dlOpts := append([]download.Option{download.WithLogger(logger)}, opts.downloadOpts...)
	if opts.ShowProgress {
		dlOpts = append(dlOpts, download.WithProgress())
	}

	return &pipeline{
		client: client,
		store:  store,
		target: target,
		dl:     download.New(dlOpts...),
		logger: logger,
	}, nil
}
