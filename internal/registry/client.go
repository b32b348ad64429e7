package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/embedpg/embedpg/internal/config"
	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/httputil"
	"github.com/embedpg/embedpg/internal/log"
	"github.com/embedpg/embedpg/internal/platform"
)

const (
	indexStage  = "index"
	locateStage = "locate"

	// maxRetries bounds retry attempts on transient failures.
	// 4xx responses are never retried.
	maxRetries = 2

	// releasePages caps pagination; at 100 releases per page this
	// covers far more history than any caller asks for.
	releasePages = 5

	// maxHashSize bounds the sibling digest asset. A SHA-256 line is
	// under 200 bytes; anything larger is not a digest file.
	maxHashSize = 4096
)

// Client fetches the release index from one GitHub repository.
type Client struct {
	gh     *github.Client
	http   *http.Client
	owner  string
	repo   string
	logger log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the GitHub API client at a different endpoint.
// Used by tests to target an httptest server.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if u, err := url.Parse(base); err == nil {
			c.gh.BaseURL = u
		}
	}
}

// WithHTTPClient replaces the client used for digest asset fetches.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger attaches a logger. Defaults to the process logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a release index client for "owner/repo". A
// GITHUB_TOKEN in the environment upgrades requests to authenticated
// ones, which raises API rate limits.
func NewClient(repo string, opts ...Option) (*Client, error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid registry %q: expected owner/repo", repo)
	}

	var ghHTTP *http.Client
	if token := config.GitHubToken(); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		ghHTTP = oauth2.NewClient(context.Background(), ts)
	}

	c := &Client{
		gh:     github.NewClient(ghHTTP),
		http:   httputil.NewClient(httputil.ClientOptions{Timeout: config.APITimeout()}),
		owner:  owner,
		repo:   name,
		logger: log.Default().With("registry", repo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchIndex retrieves the registry's releases and maps them onto the
// release model. Transient failures (connection errors, 5xx) are
// retried up to maxRetries times; 4xx responses fail immediately.
func (c *Client) FetchIndex(ctx context.Context) (*Index, error) {
	releases, err := c.listReleases(ctx)
	if err != nil {
		return nil, err
	}

	idx := newIndex()
	for _, rel := range releases {
		mapped, ok := c.mapRelease(rel)
		if !ok {
			continue
		}
		idx.add(mapped)
	}

	if idx.Len() == 0 && len(releases) > 0 {
		return nil, fault.New(fault.KindRegistryMalformed, indexStage,
			"none of %d releases could be mapped to the release model", len(releases))
	}

	c.logger.Debug("release index fetched", "releases", idx.Len())
	return idx, nil
}

// listReleases paginates the releases API with bounded retry.
func (c *Client) listReleases(ctx context.Context) ([]*github.RepositoryRelease, error) {
	var all []*github.RepositoryRelease
	opts := &github.ListOptions{PerPage: 100}

	for page := 1; page <= releasePages; page++ {
		opts.Page = page

		releases, resp, err := c.fetchPage(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, releases...)

		if resp.NextPage == 0 {
			break
		}
	}
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, opts *github.ListOptions) ([]*github.RepositoryRelease, *github.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug("retrying release list", "attempt", attempt)
			select {
			case <-ctx.Done():
				return nil, nil, fault.Wrap(ctx.Err(), fault.KindRegistryUnreachable, indexStage,
					"canceled while fetching releases")
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		releases, resp, err := c.gh.Repositories.ListReleases(ctx, c.owner, c.repo, opts)
		if err == nil {
			return releases, resp, nil
		}
		lastErr = err

		if undecodable(err) {
			return nil, nil, fault.Wrap(err, fault.KindRegistryMalformed, indexStage,
				"registry response is not decodable")
		}
		if !retryable(err, resp) {
			return nil, nil, fault.Wrap(err, fault.KindRegistryUnreachable, indexStage,
				"registry request failed")
		}
	}
	return nil, nil, fault.Wrap(lastErr, fault.KindRegistryUnreachable, indexStage,
		"registry unreachable after %d retries", maxRetries)
}

// undecodable reports whether a release-list failure is the registry
// answering with a body that cannot be decoded. The registry responded,
// so this is a malformed response, not an unreachable one.
func undecodable(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// retryable reports whether a release-list failure is transient.
func retryable(err error, resp *github.Response) bool {
	if resp != nil && resp.Response != nil {
		code := resp.StatusCode
		if code >= 500 {
			return true
		}
		if code >= 400 {
			return false
		}
	}
	return fault.Classify(err).Transient()
}

// mapRelease converts a GitHub release into the release model.
// Releases with unparseable tags or no recognizable assets are
// skipped; they are typically tooling tags, not distribution builds.
func (c *Client) mapRelease(rel *github.RepositoryRelease) (*Release, bool) {
	if rel.TagName == nil {
		return nil, false
	}
	v, err := semver.NewVersion(strings.TrimPrefix(*rel.TagName, "v"))
	if err != nil {
		c.logger.Debug("skipping unparseable tag", "tag", *rel.TagName)
		return nil, false
	}

	mapped := &Release{
		Version: v,
		Assets:  make(map[platform.Triple]Asset),
	}
	if rel.PublishedAt != nil {
		mapped.PublishedAt = rel.PublishedAt.Time
	}

	// First pass: archives. Second pass: attach .sha256 siblings.
	for _, a := range rel.Assets {
		if a.Name == nil || a.BrowserDownloadURL == nil {
			continue
		}
		triple, ok := parseAssetTriple(*a.Name, v.String())
		if !ok {
			continue
		}
		if _, dup := mapped.Assets[triple]; dup {
			continue
		}
		mapped.Assets[triple] = Asset{
			Platform:    triple,
			Name:        *a.Name,
			DownloadURL: *a.BrowserDownloadURL,
		}
	}
	for _, a := range rel.Assets {
		if a.Name == nil || a.BrowserDownloadURL == nil {
			continue
		}
		base, found := strings.CutSuffix(*a.Name, ".sha256")
		if !found {
			continue
		}
		triple, ok := parseAssetTriple(base, v.String())
		if !ok {
			continue
		}
		if asset, exists := mapped.Assets[triple]; exists {
			asset.HashURL = *a.BrowserDownloadURL
			mapped.Assets[triple] = asset
		}
	}

	if len(mapped.Assets) == 0 {
		return nil, false
	}
	return mapped, true
}

// FetchExpectedHash retrieves the registry-published digest for an
// asset. Returns empty when the asset carries no digest URL.
// The digest file holds the hex digest, optionally followed by the
// filename in coreutils sha256sum style.
func (c *Client) FetchExpectedHash(ctx context.Context, asset Asset) (string, error) {
	if asset.HashURL == "" {
		return "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.HashURL, nil)
	if err != nil {
		return "", fault.Wrap(err, fault.KindRegistryMalformed, indexStage,
			"invalid digest URL for %s", asset.Name)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fault.Wrap(err, fault.KindRegistryUnreachable, indexStage,
			"failed to fetch digest for %s", asset.Name)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fault.New(fault.KindRegistryUnreachable, indexStage,
			"digest fetch for %s returned status %d", asset.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHashSize))
	if err != nil {
		return "", fault.Wrap(err, fault.KindRegistryUnreachable, indexStage,
			"failed to read digest for %s", asset.Name)
	}

	digest := parseDigest(string(body))
	if digest == "" {
		return "", fault.New(fault.KindRegistryMalformed, indexStage,
			"digest asset for %s is not a SHA-256 digest", asset.Name)
	}
	return digest, nil
}

// parseDigest extracts a 64-char lowercase hex digest from digest file
// content. Returns empty when the content is not a digest.
func parseDigest(content string) string {
	fields := strings.Fields(content)
	if len(fields) == 0 {
		return ""
	}
	digest := strings.ToLower(fields[0])
	if len(digest) != 64 {
		return ""
	}
	for _, r := range digest {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}
	return digest
}
