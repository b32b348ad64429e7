// Package extract unpacks release archives into a destination
// directory. Formats are detected from content, not filename, and
// every entry is validated against path traversal before it touches
// the filesystem.
package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	lzip "github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"

	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/log"
)

const stage = "extract"

// maxLinkTarget bounds a symlink target read from a zip entry body.
const maxLinkTarget = 4096

// Format identifies an archive encoding.
type Format int

const (
	FormatUnknown Format = iota
	FormatTarGz
	FormatTarXz
	FormatTarZst
	FormatTarBz2
	FormatTarLz
	FormatTar
	FormatZip
)

// String returns the conventional file extension for the format.
func (f Format) String() string {
	switch f {
	case FormatTarGz:
		return "tar.gz"
	case FormatTarXz:
		return "tar.xz"
	case FormatTarZst:
		return "tar.zst"
	case FormatTarBz2:
		return "tar.bz2"
	case FormatTarLz:
		return "tar.lz"
	case FormatTar:
		return "tar"
	case FormatZip:
		return "zip"
	default:
		return "unknown"
	}
}

// Magic numbers for the supported encodings. Tar has no leading magic;
// the ustar signature sits at offset 257 of the first header block.
var (
	magicGzip  = []byte{0x1f, 0x8b}
	magicXz    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	magicZstd  = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicBzip2 = []byte{'B', 'Z', 'h'}
	magicLzip  = []byte{'L', 'Z', 'I', 'P'}
	magicZip   = []byte{'P', 'K', 0x03, 0x04}
	magicUstar = []byte{'u', 's', 't', 'a', 'r'}
)

// Sniff detects the archive format from the file's leading bytes.
// Filenames lie; registry mirrors have served zip payloads under
// .tar.gz names.
func Sniff(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return FormatUnknown, fmt.Errorf("failed to read archive header: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(header, magicXz):
		return FormatTarXz, nil
	case bytes.HasPrefix(header, magicZstd):
		return FormatTarZst, nil
	case bytes.HasPrefix(header, magicBzip2):
		return FormatTarBz2, nil
	case bytes.HasPrefix(header, magicLzip):
		return FormatTarLz, nil
	case bytes.HasPrefix(header, magicZip):
		return FormatZip, nil
	case len(header) >= 262 && bytes.Equal(header[257:262], magicUstar):
		return FormatTar, nil
	default:
		return FormatUnknown, nil
	}
}

// Summary reports what an extraction produced.
type Summary struct {
	Files    int
	Dirs     int
	Symlinks int
	Bytes    int64
}

// Extractor unpacks archives.
type Extractor struct {
	logger log.Logger

	// stripComponents drops this many leading path elements from every
	// entry, like tar --strip-components.
	stripComponents int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger attaches a logger.
func WithLogger(l log.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// WithStripComponents drops n leading path elements from each entry.
func WithStripComponents(n int) Option {
	return func(e *Extractor) { e.stripComponents = n }
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{logger: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract unpacks the archive at archivePath into destDir, creating
// the directory if needed. On an unsafe entry the extraction aborts
// and everything written so far is removed best-effort.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (*Summary, error) {
	format, err := Sniff(archivePath)
	if err != nil {
		return nil, err
	}
	if format == FormatUnknown {
		return nil, fault.New(fault.KindRegistryMalformed, stage,
			"unrecognized archive format in %s", filepath.Base(archivePath))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fault.Wrap(err, fault.KindDestinationUnavailable, stage,
			"cannot create destination %s", destDir)
	}
	if err := checkWritable(destDir); err != nil {
		return nil, fault.Wrap(err, fault.KindDestinationUnavailable, stage,
			"destination %s is not writable", destDir)
	}

	e.logger.Debug("extracting archive",
		"archive", archivePath, "format", format.String(), "dest", destDir)

	if format == FormatZip {
		return e.extractZip(ctx, archivePath, destDir)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch format {
	case FormatTarGz:
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzr.Close()
		r = gzr
	case FormatTarXz:
		xzr, err := xz.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create xz reader: %w", err)
		}
		r = xzr
	case FormatTarZst:
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case FormatTarBz2:
		r = bzip2.NewReader(f)
	case FormatTarLz:
		lr, err := lzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create lzip reader: %w", err)
		}
		r = lr
	case FormatTar:
		r = f
	}

	return e.extractTar(ctx, tar.NewReader(r), destDir)
}

// checkWritable probes destDir with a throwaway file.
func checkWritable(destDir string) error {
	probe, err := os.CreateTemp(destDir, ".embedpg-probe-*")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}

// entryPath maps an archive member name to its on-disk target, or
// returns skip=true when strip-components consumes the whole name.
func (e *Extractor) entryPath(name, destDir string) (target string, skip bool) {
	clean := strings.TrimPrefix(name, "./")
	parts := strings.Split(clean, "/")
	if len(parts) <= e.stripComponents {
		return "", true
	}
	rel := filepath.Join(parts[e.stripComponents:]...)
	if rel == "" || rel == "." {
		return "", true
	}
	return filepath.Join(destDir, rel), false
}

func (e *Extractor) extractTar(ctx context.Context, tr *tar.Reader, destDir string) (*Summary, error) {
	var summary Summary
	var written []string

	fail := func(err error) (*Summary, error) {
		e.cleanup(written)
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fail(fmt.Errorf("failed to read tar header: %w", err))
		}

		target, skip := e.entryPath(header.Name, destDir)
		if skip {
			continue
		}
		if !isPathWithinDirectory(target, destDir) {
			return fail(fault.New(fault.KindUnsafeArchiveEntry, stage,
				"entry escapes destination: %s", header.Name))
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)|0o700); err != nil {
				return fail(fmt.Errorf("failed to create directory: %w", err))
			}
			written = append(written, target)
			summary.Dirs++

		case tar.TypeReg:
			n, err := writeEntry(target, tr, os.FileMode(header.Mode))
			if err != nil {
				return fail(err)
			}
			written = append(written, target)
			summary.Files++
			summary.Bytes += n

		case tar.TypeSymlink:
			if err := validateSymlinkTarget(header.Linkname, target, destDir); err != nil {
				return fail(err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fail(fmt.Errorf("failed to create parent directory: %w", err))
			}
			if err := atomicSymlink(header.Linkname, target); err != nil {
				return fail(fmt.Errorf("failed to create symlink: %w", err))
			}
			written = append(written, target)
			summary.Symlinks++

		default:
			// Block/char devices, FIFOs and hard links have no place in
			// a binaries archive.
			e.logger.Warn("skipping unsupported tar entry",
				"name", header.Name, "type", header.Typeflag)
		}
	}

	return &summary, nil
}

func (e *Extractor) extractZip(ctx context.Context, archivePath, destDir string) (*Summary, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	var summary Summary
	var written []string

	fail := func(err error) (*Summary, error) {
		e.cleanup(written)
		return nil, err
	}

	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		target, skip := e.entryPath(f.Name, destDir)
		if skip {
			continue
		}
		if !isPathWithinDirectory(target, destDir) {
			return fail(fault.New(fault.KindUnsafeArchiveEntry, stage,
				"entry escapes destination: %s", f.Name))
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, f.Mode()|0o700); err != nil {
				return fail(fmt.Errorf("failed to create directory: %w", err))
			}
			written = append(written, target)
			summary.Dirs++
			continue
		}

		// Zip symlinks store the target as the entry body. They must
		// become real, validated symlinks, never regular files holding
		// the target string.
		if f.Mode()&os.ModeSymlink != 0 {
			rc, err := f.Open()
			if err != nil {
				return fail(fmt.Errorf("failed to open zip entry: %w", err))
			}
			linkTarget, err := io.ReadAll(io.LimitReader(rc, maxLinkTarget))
			rc.Close()
			if err != nil {
				return fail(fmt.Errorf("failed to read symlink target: %w", err))
			}
			if err := validateSymlinkTarget(string(linkTarget), target, destDir); err != nil {
				return fail(err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fail(fmt.Errorf("failed to create parent directory: %w", err))
			}
			if err := atomicSymlink(string(linkTarget), target); err != nil {
				return fail(fmt.Errorf("failed to create symlink: %w", err))
			}
			written = append(written, target)
			summary.Symlinks++
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return fail(fmt.Errorf("failed to open zip entry: %w", err))
		}
		n, err := writeEntry(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return fail(err)
		}
		written = append(written, target)
		summary.Files++
		summary.Bytes += n
	}

	return &summary, nil
}

// writeEntry streams one regular file to disk, creating parents.
func writeEntry(target string, src io.Reader, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// cleanup removes partially-extracted entries in reverse order.
// Failures are logged, never propagated; the original error matters
// more than the state of a directory we are abandoning.
func (e *Extractor) cleanup(written []string) {
	for i := len(written) - 1; i >= 0; i-- {
		if err := os.Remove(written[i]); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove partial entry",
				"path", written[i], "error", err)
		}
	}
}

// isPathWithinDirectory checks if targetPath is contained in basePath.
// The separator suffix prevents /tmp/foo from matching /tmp/foobar.
func isPathWithinDirectory(targetPath, basePath string) bool {
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return false
	}
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return false
	}
	return absTarget == absBase || strings.HasPrefix(absTarget, absBase+string(os.PathSeparator))
}

// validateSymlinkTarget rejects symlinks that are absolute or resolve
// outside the destination directory.
func validateSymlinkTarget(linkTarget, linkLocation, destDir string) error {
	if filepath.IsAbs(linkTarget) {
		return fault.New(fault.KindUnsafeArchiveEntry, stage,
			"absolute symlink target: %s -> %s", linkLocation, linkTarget)
	}
	resolved := filepath.Join(filepath.Dir(linkLocation), linkTarget)
	if !isPathWithinDirectory(resolved, destDir) {
		return fault.New(fault.KindUnsafeArchiveEntry, stage,
			"symlink escapes destination: %s -> %s", linkLocation, linkTarget)
	}
	return nil
}

// atomicSymlink creates a symlink via rename so a half-written link is
// never observable at the final path.
func atomicSymlink(target, linkPath string) error {
	tmpLink := linkPath + ".tmp"
	os.Remove(tmpLink)
	if err := os.Symlink(target, tmpLink); err != nil {
		return err
	}
	if err := os.Rename(tmpLink, linkPath); err != nil {
		os.Remove(tmpLink)
		return err
	}
	return nil
}
