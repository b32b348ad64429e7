// Package download streams release archives over HTTPS and verifies
// them against the registry-published digest before handing them on.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/embedpg/embedpg/internal/config"
	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/httputil"
	"github.com/embedpg/embedpg/internal/log"
	"github.com/embedpg/embedpg/internal/progress"
)

const stage = "download"

// Result is a downloaded, digest-checked archive. The caller owns the
// spill file and must remove it when done.
type Result struct {
	// Path is the temporary spill file holding the archive bytes.
	Path string

	// Digest is the hex SHA-256 of the complete payload.
	Digest string

	// Verified is false when the registry published no digest for the
	// asset. Callers may treat an unverified archive as a warning.
	Verified bool

	// Size is the payload length in bytes.
	Size int64
}

// Downloader retrieves archive payloads.
type Downloader struct {
	http         *http.Client
	logger       log.Logger
	tempDir      string // "" means the system temp dir
	showProgress bool
	allowHTTP    bool // tests only; production requires HTTPS
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithHTTPClient replaces the transport. Used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(d *Downloader) { d.http = h }
}

// WithLogger attaches a logger.
func WithLogger(l log.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// WithTempDir sets the directory for spill files.
func WithTempDir(dir string) Option {
	return func(d *Downloader) { d.tempDir = dir }
}

// WithProgress enables the terminal progress display.
func WithProgress() Option {
	return func(d *Downloader) { d.showProgress = true }
}

// WithInsecureHTTP permits plain-HTTP URLs. Tests only.
func WithInsecureHTTP() Option {
	return func(d *Downloader) { d.allowHTTP = true }
}

// New creates a Downloader with a hardened HTTP client.
func New(opts ...Option) *Downloader {
	d := &Downloader{
		http: httputil.NewClient(httputil.ClientOptions{
			Timeout: config.DefaultDownloadTimeout,
		}),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Fetch downloads the payload at url, streaming it into a spill file
// while computing its SHA-256. When expectedHash is non-empty the
// computed digest must match or the download fails with
// IntegrityMismatch and the spill file is removed. The payload is
// never held in a fixed-size buffer; archives are tens of megabytes.
func (d *Downloader) Fetch(ctx context.Context, url, expectedHash string) (*Result, error) {
	if !d.allowHTTP && !strings.HasPrefix(url, "https://") {
		return nil, fault.New(fault.KindRegistryMalformed, stage,
			"refusing non-HTTPS download URL %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %s", resp.Status)
	}

	spill, err := os.CreateTemp(d.tempDir, "embedpg-*.download")
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}

	hasher := sha256.New()
	var sink io.Writer = io.MultiWriter(spill, hasher)

	var pw *progress.Writer
	if d.showProgress && progress.Enabled() && resp.ContentLength > 0 {
		pw = progress.NewWriter(sink, resp.ContentLength, os.Stdout)
		sink = pw
	}

	size, err := io.Copy(sink, resp.Body)
	if pw != nil {
		pw.Finish()
	}
	if cerr := spill.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.discard(spill.Name())
		return nil, fmt.Errorf("failed to stream payload: %w", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))

	if expectedHash != "" && digest != strings.ToLower(expectedHash) {
		d.discard(spill.Name())
		return nil, fault.New(fault.KindIntegrityMismatch, stage,
			"digest mismatch for %s: expected %s, got %s", url, expectedHash, digest)
	}

	verified := expectedHash != ""
	if !verified {
		d.logger.Warn("archive has no published digest, skipping verification", "url", url)
	}
	d.logger.Debug("download complete", "bytes", size, "digest", digest, "verified", verified)

	return &Result{Path: spill.Name(), Digest: digest, Verified: verified, Size: size}, nil
}

// AsyncResult carries the outcome of FetchAsync.
type AsyncResult struct {
	Result *Result
	Err    error
}

// FetchAsync runs Fetch on a goroutine and delivers the outcome on the
// returned channel. Semantics are identical to Fetch; this exists so
// callers in an event-driven host can await the download without
// occupying a worker.
func (d *Downloader) FetchAsync(ctx context.Context, url, expectedHash string) <-chan AsyncResult {
	out := make(chan AsyncResult, 1)
	go func() {
		res, err := d.Fetch(ctx, url, expectedHash)
		out <- AsyncResult{Result: res, Err: err}
		close(out)
	}()
	return out
}

// discard removes a spill file, logging (never propagating) failures.
func (d *Downloader) discard(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove spill file", "path", path, "error", err)
	}
}
