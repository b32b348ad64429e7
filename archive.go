package embedpg

import (
	"context"

	"github.com/Masterminds/semver/v3"

	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/registry"
	"github.com/embedpg/embedpg/internal/version"
)

// Resolve maps a version specifier to the concrete version it selects,
// without downloading anything.
func Resolve(ctx context.Context, spec string, opts *Options) (string, error) {
	parsed, err := version.Parse(spec)
	if err != nil {
		return "", err
	}
	p, err := newPipeline(opts)
	if err != nil {
		return "", err
	}

	idx, err := p.client.FetchIndex(ctx)
	if err != nil {
		return "", err
	}
	resolved, err := version.Resolve(parsed, idx.Versions(), version.ResolveOptions{
		IncludePrerelease: opts.includePrerelease(),
	})
	if err != nil {
		return "", err
	}
	return resolved.String(), nil
}

// Versions lists every version the registry publishes, newest first by
// semantic-version order.
func Versions(ctx context.Context, opts *Options) ([]string, error) {
	p, err := newPipeline(opts)
	if err != nil {
		return nil, err
	}
	idx, err := p.client.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}

	versions := append([]*semver.Version(nil), idx.Versions()...)
	version.SortDescending(versions)

	out := make([]string, len(versions))
	for i, v := range versions {
		out[i] = v.String()
	}
	return out, nil
}

// GetArchive resolves spec, locates the asset for the target platform
// and makes the archive available locally, serving it from the cache
// when a verified copy is already present. The returned Archive must
// be Closed by the caller.
func GetArchive(ctx context.Context, spec string, opts *Options) (*Archive, error) {
	parsed, err := version.Parse(spec)
	if err != nil {
		return nil, err
	}
	p, err := newPipeline(opts)
	if err != nil {
		return nil, err
	}

	idx, err := p.client.FetchIndex(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := version.Resolve(parsed, idx.Versions(), version.ResolveOptions{
		IncludePrerelease: opts.includePrerelease(),
	})
	if err != nil {
		return nil, err
	}
	rel, ok := idx.Release(resolved)
	if !ok {
		return nil, fault.New(fault.KindRegistryMalformed, "locate",
			"resolved version %s has no release in the index", resolved)
	}

	asset, err := registry.Locate(rel, p.target)
	if err != nil {
		return nil, err
	}

	expected, err := p.client.FetchExpectedHash(ctx, asset)
	if err != nil {
		return nil, err
	}

	if p.store != nil {
		if entry, ok := p.store.Get(resolved.String(), asset.Platform, expected); ok {
			p.logger.Info("archive served from cache",
				"version", resolved.String(), "platform", asset.Platform.String())
			return &Archive{
				Version:   resolved.String(),
				Platform:  asset.Platform.String(),
				AssetName: asset.Name,
				Path:      entry.Path,
				Digest:    entry.Digest,
				Verified:  expected != "",
				FromCache: true,
			}, nil
		}
	}

	p.logger.Info("downloading archive",
		"version", resolved.String(), "platform", asset.Platform.String(), "asset", asset.Name)

	res, err := p.dl.Fetch(ctx, asset.DownloadURL, expected)
	if err != nil {
		return nil, err
	}

	archive := &Archive{
		Version:   resolved.String(),
		Platform:  asset.Platform.String(),
		AssetName: asset.Name,
		Path:      res.Path,
		Digest:    res.Digest,
		Verified:  res.Verified,
		ownedTemp: true,
	}

	if p.store != nil {
		entry, err := p.store.Put(resolved.String(), asset.Platform, res.Path, res.Digest)
		if err != nil {
			archive.Close()
			return nil, err
		}
		archive.Close()
		archive.Path = entry.Path
		archive.FromCache = false
		archive.ownedTemp = false
	}
	return archive, nil
}

func (o *Options) includePrerelease() bool {
	return o != nil && o.IncludePrerelease
}
