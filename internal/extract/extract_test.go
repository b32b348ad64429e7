package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/log"
)

type tarEntry struct {
	name     string
	typeflag byte
	mode     int64
	content  string
	linkname string
}

func writeTarGz(t *testing.T, entries []tarEntry) string {
	t.Helper()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for _, e := range entries {
		hdr := &tar.Header{
			Name:     e.name,
			Typeflag: e.typeflag,
			Mode:     e.mode,
			Linkname: e.linkname,
		}
		if e.typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.content))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if e.typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.content))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	path := filepath.Join(t.TempDir(), "archive.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestExtractTarGzRoundTrip(t *testing.T) {
	t.Parallel()

	archive := writeTarGz(t, []tarEntry{
		{name: "bin/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "bin/postgres", typeflag: tar.TypeReg, mode: 0o755, content: "#!/bin/sh\n"},
		{name: "share/version.txt", typeflag: tar.TypeReg, mode: 0o644, content: "17.2.0"},
		{name: "bin/pg_ctl", typeflag: tar.TypeSymlink, linkname: "postgres"},
	})

	dest := filepath.Join(t.TempDir(), "pg")
	summary, err := New(WithLogger(log.NewNoop())).Extract(context.Background(), archive, dest)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 1, summary.Dirs)
	assert.Equal(t, 1, summary.Symlinks)

	content, err := os.ReadFile(filepath.Join(dest, "share", "version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "17.2.0", string(content))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "bin", "postgres"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o755), info.Mode().Perm(), "executable bit must survive")

		link, err := os.Readlink(filepath.Join(dest, "bin", "pg_ctl"))
		require.NoError(t, err)
		assert.Equal(t, "postgres", link)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	t.Parallel()

	archive := writeTarGz(t, []tarEntry{
		{name: "ok.txt", typeflag: tar.TypeReg, mode: 0o644, content: "fine"},
		{name: "../escape.txt", typeflag: tar.TypeReg, mode: 0o644, content: "evil"},
	})

	parent := t.TempDir()
	dest := filepath.Join(parent, "pg")

	_, err := New(WithLogger(log.NewNoop())).Extract(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindUnsafeArchiveEntry), "got: %v", err)

	_, statErr := os.Stat(filepath.Join(parent, "escape.txt"))
	assert.True(t, os.IsNotExist(statErr), "traversal entry must not be written")

	_, statErr = os.Stat(filepath.Join(dest, "ok.txt"))
	assert.True(t, os.IsNotExist(statErr), "entries before the unsafe one are rolled back")
}

func TestExtractRejectsUnsafeSymlinks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		linkname string
	}{
		{"absolute", "/etc/passwd"},
		{"escaping", "../../outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			archive := writeTarGz(t, []tarEntry{
				{name: "link", typeflag: tar.TypeSymlink, linkname: tt.linkname},
			})

			_, err := New(WithLogger(log.NewNoop())).Extract(
				context.Background(), archive, filepath.Join(t.TempDir(), "pg"))
			require.Error(t, err)
			assert.True(t, fault.IsKind(err, fault.KindUnsafeArchiveEntry), "got: %v", err)
		})
	}
}

func TestExtractStripComponents(t *testing.T) {
	t.Parallel()

	archive := writeTarGz(t, []tarEntry{
		{name: "postgresql-17.2.0/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "postgresql-17.2.0/bin/psql", typeflag: tar.TypeReg, mode: 0o755, content: "x"},
	})

	dest := filepath.Join(t.TempDir(), "pg")
	summary, err := New(WithLogger(log.NewNoop()), WithStripComponents(1)).
		Extract(context.Background(), archive, dest)
	require.NoError(t, err)

	// The wrapper directory is consumed by the strip.
	assert.Equal(t, 0, summary.Dirs)
	_, err = os.Stat(filepath.Join(dest, "bin", "psql"))
	assert.NoError(t, err)
}

func TestExtractZip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("bin/psql.exe")
	require.NoError(t, err)
	_, err = w.Write([]byte("MZ"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	archive := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	dest := filepath.Join(t.TempDir(), "pg")
	summary, err := New(WithLogger(log.NewNoop())).Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)

	content, err := os.ReadFile(filepath.Join(dest, "bin", "psql.exe"))
	require.NoError(t, err)
	assert.Equal(t, "MZ", string(content))
}

func writeZip(t *testing.T, build func(zw *zip.Writer)) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	build(zw)
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func zipSymlink(t *testing.T, zw *zip.Writer, name, linkTarget string) {
	t.Helper()
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	hdr.SetMode(os.ModeSymlink | 0o777)
	w, err := zw.CreateHeader(hdr)
	require.NoError(t, err)
	_, err = w.Write([]byte(linkTarget))
	require.NoError(t, err)
}

func TestExtractZipSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation requires privileges on windows")
	}
	t.Parallel()

	archive := writeZip(t, func(zw *zip.Writer) {
		w, err := zw.Create("bin/postgres")
		require.NoError(t, err)
		_, err = w.Write([]byte("#!/bin/sh\n"))
		require.NoError(t, err)
		zipSymlink(t, zw, "bin/pg_ctl", "postgres")
	})

	dest := filepath.Join(t.TempDir(), "pg")
	summary, err := New(WithLogger(log.NewNoop())).Extract(context.Background(), archive, dest)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Files)
	assert.Equal(t, 1, summary.Symlinks)

	// A real symlink, not a regular file holding the target string.
	info, err := os.Lstat(filepath.Join(dest, "bin", "pg_ctl"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink, "zip symlink entry must become a symlink")

	link, err := os.Readlink(filepath.Join(dest, "bin", "pg_ctl"))
	require.NoError(t, err)
	assert.Equal(t, "postgres", link)
}

func TestExtractZipRejectsEscapingSymlink(t *testing.T) {
	t.Parallel()

	archive := writeZip(t, func(zw *zip.Writer) {
		zipSymlink(t, zw, "bin/pg_ctl", "../../../etc/passwd")
	})

	dest := filepath.Join(t.TempDir(), "pg")
	_, err := New(WithLogger(log.NewNoop())).Extract(context.Background(), archive, dest)
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindUnsafeArchiveEntry), "got: %v", err)

	_, statErr := os.Lstat(filepath.Join(dest, "bin", "pg_ctl"))
	assert.True(t, os.IsNotExist(statErr), "escaping symlink must not be written in any form")
}

func TestExtractUnknownFormat(t *testing.T) {
	t.Parallel()

	archive := filepath.Join(t.TempDir(), "junk.tar.gz")
	require.NoError(t, os.WriteFile(archive, []byte("<html>mirror error page</html>"), 0o644))

	_, err := New(WithLogger(log.NewNoop())).Extract(
		context.Background(), archive, filepath.Join(t.TempDir(), "pg"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindRegistryMalformed), "got: %v", err)
}

func TestExtractDestinationUnavailable(t *testing.T) {
	t.Parallel()

	archive := writeTarGz(t, []tarEntry{
		{name: "a.txt", typeflag: tar.TypeReg, mode: 0o644, content: "x"},
	})

	// A regular file where a directory component should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := New(WithLogger(log.NewNoop())).Extract(
		context.Background(), archive, filepath.Join(blocker, "pg"))
	require.Error(t, err)
	assert.True(t, fault.IsKind(err, fault.KindDestinationUnavailable), "got: %v", err)
}

func TestExtractHonorsContext(t *testing.T) {
	t.Parallel()

	archive := writeTarGz(t, []tarEntry{
		{name: "a.txt", typeflag: tar.TypeReg, mode: 0o644, content: "x"},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(WithLogger(log.NewNoop())).Extract(ctx, archive, filepath.Join(t.TempDir(), "pg"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSniff(t *testing.T) {
	t.Parallel()

	ustar := make([]byte, 512)
	copy(ustar[257:], "ustar")

	tests := []struct {
		name   string
		header []byte
		want   Format
	}{
		{"gzip", []byte{0x1f, 0x8b, 0x08}, FormatTarGz},
		{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, FormatTarXz},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}, FormatTarZst},
		{"bzip2", []byte("BZh91AY"), FormatTarBz2},
		{"lzip", []byte("LZIP\x01"), FormatTarLz},
		{"zip", []byte("PK\x03\x04"), FormatZip},
		{"tar", ustar, FormatTar},
		{"unknown", []byte("plain text"), FormatUnknown},
		{"empty", nil, FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "f")
			require.NoError(t, os.WriteFile(path, tt.header, 0o644))

			got, err := Sniff(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got, "format %s", tt.want)
		})
	}
}
