package embedpg

import (
	"context"
	"os/exec"
	"path/filepath"

	"github.com/embedpg/embedpg/internal/command"
	"github.com/embedpg/embedpg/internal/config"
	"github.com/embedpg/embedpg/internal/extract"
	"github.com/embedpg/embedpg/internal/log"
)

// Installation is an extracted distribution on disk.
type Installation struct {
	// Version is the installed concrete version.
	Version string

	// Platform is the platform the binaries were built for.
	Platform string

	// Dir is the installation root.
	Dir string

	// BinDir is the directory holding the executables.
	BinDir string

	// Files and Bytes describe what extraction produced.
	Files int
	Bytes int64
}

// Install acquires the distribution selected by spec and extracts it
// into destDir. An empty destDir installs under
// <home>/versions/<resolved version>; the version is known from the
// single index fetch GetArchive already performs. The archive itself
// is cached per Options; the extracted tree belongs to the caller.
func Install(ctx context.Context, spec, destDir string, opts *Options) (*Installation, error) {
	archive, err := GetArchive(ctx, spec, opts)
	if err != nil {
		return nil, err
	}
	defer archive.Close()

	if destDir == "" {
		cfg, err := config.Default()
		if err != nil {
			return nil, err
		}
		destDir = filepath.Join(cfg.Home, "versions", archive.Version)
	}

	summary, err := extract.New(extract.WithLogger(log.Default())).
		Extract(ctx, archive.Path, destDir)
	if err != nil {
		return nil, err
	}

	log.Default().Info("installed distribution",
		"version", archive.Version, "dir", destDir,
		"files", summary.Files, "bytes", summary.Bytes)

	return &Installation{
		Version:  archive.Version,
		Platform: archive.Platform,
		Dir:      destDir,
		BinDir:   filepath.Join(destDir, "bin"),
		Files:    summary.Files,
		Bytes:    summary.Bytes,
	}, nil
}

// Command prepares an invocation of one of the installed binaries,
// e.g. inst.Command(ctx, "initdb", "--pgdata", dataDir). The returned
// command is not started.
func (i *Installation) Command(ctx context.Context, program string, args ...string) *exec.Cmd {
	b := command.New(i.BinDir, program)
	for _, a := range args {
		b.Arg(a)
	}
	return b.Command(ctx)
}
