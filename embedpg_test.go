package embedpg

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedpg/embedpg/internal/config"
	"github.com/embedpg/embedpg/internal/download"
	"github.com/embedpg/embedpg/internal/registry"
)

// testDistribution serves a fake registry with one release and its
// archive, wired into Options via the test seams.
type testDistribution struct {
	server     *httptest.Server
	payload    []byte
	digest     string
	downloads  atomic.Int32
	indexCalls atomic.Int32
	spillDir   string
}

func buildTarGz(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755,
	}))
	content := "#!/bin/sh\necho postgres\n"
	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: "bin/postgres", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(content)),
	}))
	_, err := tw.Write([]byte(content))
	require.NoError(t, err)

	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())
	return buf.Bytes()
}

func newTestDistribution(t *testing.T, badDigest bool) *testDistribution {
	t.Helper()

	dist := &testDistribution{payload: buildTarGz(t), spillDir: t.TempDir()}
	sum := sha256.Sum256(dist.payload)
	dist.digest = hex.EncodeToString(sum[:])
	if badDigest {
		tampered := sha256.Sum256([]byte("something else entirely"))
		dist.digest = hex.EncodeToString(tampered[:])
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/repo/releases", func(w http.ResponseWriter, r *http.Request) {
		dist.indexCalls.Add(1)
		fmt.Fprintf(w, `[
		  {
		    "tag_name": "17.2.0",
		    "published_at": "2024-11-21T10:00:00Z",
		    "assets": [
		      {
		        "name": "postgresql-17.2.0-x86_64-unknown-linux-gnu.tar.gz",
		        "browser_download_url": "%[1]s/dl/pg.tar.gz"
		      },
		      {
		        "name": "postgresql-17.2.0-x86_64-unknown-linux-gnu.tar.gz.sha256",
		        "browser_download_url": "%[1]s/dl/pg.tar.gz.sha256"
		      }
		    ]
		  },
		  {
		    "tag_name": "16.4.0",
		    "published_at": "2024-08-08T10:00:00Z",
		    "assets": [
		      {
		        "name": "postgresql-16.4.0-x86_64-unknown-linux-gnu.tar.gz",
		        "browser_download_url": "%[1]s/dl/old.tar.gz"
		      }
		    ]
		  }
		]`, dist.server.URL)
	})
	mux.HandleFunc("/dl/pg.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		dist.downloads.Add(1)
		_, _ = w.Write(dist.payload)
	})
	mux.HandleFunc("/dl/pg.tar.gz.sha256", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "%s  postgresql-17.2.0-x86_64-unknown-linux-gnu.tar.gz\n", dist.digest)
	})
	mux.HandleFunc("/dl/old.tar.gz", func(w http.ResponseWriter, r *http.Request) {
		dist.downloads.Add(1)
		_, _ = w.Write(dist.payload)
	})

	dist.server = httptest.NewServer(mux)
	t.Cleanup(dist.server.Close)
	return dist
}

// options wires the fake registry into the pipeline and pins the
// target platform so the test is host-independent.
func (d *testDistribution) options(t *testing.T) *Options {
	t.Helper()
	t.Setenv(config.EnvHome, t.TempDir())
	t.Setenv(config.EnvGitHubToken, "")

	return &Options{
		Registry: "owner/repo",
		OS:       "linux",
		Arch:     "amd64",
		Libc:     "gnu",
		registryOpts: []registry.Option{
			registry.WithBaseURL(d.server.URL + "/"),
			registry.WithHTTPClient(d.server.Client()),
		},
		downloadOpts: []download.Option{
			download.WithHTTPClient(d.server.Client()),
			download.WithInsecureHTTP(),
			download.WithTempDir(d.spillDir),
		},
	}
}

func TestInstallEndToEnd(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	dest := filepath.Join(t.TempDir(), "pg17")
	inst, err := Install(context.Background(), "17.2", dest, opts)
	require.NoError(t, err)

	assert.Equal(t, "17.2.0", inst.Version)
	assert.Equal(t, "linux/amd64/gnu", inst.Platform)
	assert.Equal(t, dest, inst.Dir)
	assert.Equal(t, filepath.Join(dest, "bin"), inst.BinDir)
	assert.Equal(t, 1, inst.Files)

	content, err := os.ReadFile(filepath.Join(inst.BinDir, "postgres"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "postgres")

	// No spill files left behind; the archive moved into the cache.
	entries, err := os.ReadDir(dist.spillDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	cmd := inst.Command(context.Background(), "initdb", "--pgdata", "/tmp/data")
	assert.Contains(t, cmd.Args, "--pgdata")
}

func TestInstallDefaultDestination(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)
	home := os.Getenv(config.EnvHome)

	inst, err := Install(context.Background(), "17.2", "", opts)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "versions", "17.2.0"), inst.Dir)
	_, statErr := os.Stat(filepath.Join(inst.BinDir, "postgres"))
	assert.NoError(t, statErr)

	assert.Equal(t, int32(1), dist.indexCalls.Load(),
		"defaulting the destination must not fetch the index again")
}

func TestGetArchiveCacheRoundTrip(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	first, err := GetArchive(context.Background(), Latest, opts)
	require.NoError(t, err)
	defer first.Close()

	assert.Equal(t, "17.2.0", first.Version)
	assert.True(t, first.Verified)
	assert.False(t, first.FromCache)
	assert.Equal(t, int32(1), dist.downloads.Load())

	second, err := GetArchive(context.Background(), Latest, opts)
	require.NoError(t, err)
	defer second.Close()

	assert.True(t, second.FromCache, "second acquisition should hit the cache")
	assert.Equal(t, first.Digest, second.Digest)
	assert.Equal(t, int32(1), dist.downloads.Load(), "no second download")
}

func TestGetArchiveNoCache(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)
	opts.NoCache = true

	for i := 0; i < 2; i++ {
		archive, err := GetArchive(context.Background(), "17", opts)
		require.NoError(t, err)
		assert.False(t, archive.FromCache)
		require.NoError(t, archive.Close())
		_, statErr := os.Stat(archive.Path)
		assert.True(t, os.IsNotExist(statErr), "Close must remove the temp archive")
	}
	assert.Equal(t, int32(2), dist.downloads.Load())
}

func TestGetArchiveIntegrityMismatch(t *testing.T) {
	dist := newTestDistribution(t, true)
	opts := dist.options(t)

	_, err := GetArchive(context.Background(), "17.2.0", opts)
	require.Error(t, err)
	assert.True(t, IsFault(err, IntegrityMismatch), "got: %v", err)

	entries, readErr := os.ReadDir(dist.spillDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "tampered download must not leave a spill file")
}

func TestGetArchiveUnverifiedWithoutDigest(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	// 16.4.0 publishes no .sha256 sibling.
	archive, err := GetArchive(context.Background(), "16.4.0", opts)
	require.NoError(t, err)
	defer archive.Close()
	assert.False(t, archive.Verified)
}

func TestGetArchiveUnsupportedPlatform(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)
	opts.Arch = "s390x"

	_, err := GetArchive(context.Background(), Latest, opts)
	require.Error(t, err)
	assert.True(t, IsFault(err, UnsupportedPlatform), "got: %v", err)
}

func TestGetArchiveVersionNotFound(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	_, err := GetArchive(context.Background(), "15.1.0", opts)
	require.Error(t, err)
	assert.True(t, IsFault(err, VersionNotFound), "got: %v", err)
}

func TestResolve(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	got, err := Resolve(context.Background(), Latest, opts)
	require.NoError(t, err)
	assert.Equal(t, "17.2.0", got)

	got, err = Resolve(context.Background(), "16", opts)
	require.NoError(t, err)
	assert.Equal(t, "16.4.0", got)
}

func TestVersions(t *testing.T) {
	dist := newTestDistribution(t, false)
	opts := dist.options(t)

	got, err := Versions(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"17.2.0", "16.4.0"}, got, "newest first")
}
