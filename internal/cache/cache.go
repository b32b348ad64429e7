// Package cache stores verified release archives on disk so repeated
// installs of the same version and platform skip the network. Entries
// are keyed by (version, platform) and live as a .data payload with a
// .meta JSON sidecar.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/embedpg/embedpg/internal/fault"
	"github.com/embedpg/embedpg/internal/log"
	"github.com/embedpg/embedpg/internal/platform"
)

const stage = "cache"

// Entry describes a cached archive. Path points at the cache-owned
// payload; callers read it but never remove it.
type Entry struct {
	Path     string
	Digest   string
	Size     int64
	CachedAt time.Time
}

// entryMeta is the .meta sidecar format.
type entryMeta struct {
	Version  string    `json:"version"`
	Platform string    `json:"platform"`
	Digest   string    `json:"digest"`
	Size     int64     `json:"size"`
	CachedAt time.Time `json:"cached_at"`
}

// Store is a filesystem archive cache. Safe for concurrent use;
// operations on the same key are serialized.
type Store struct {
	dir    string
	logger log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store rooted at dir. The directory is created
// lazily on the first Put.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		dir:    dir,
		logger: log.Default(),
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// key maps (version, platform) to a filesystem-safe entry name.
func key(version string, plat platform.Triple) string {
	return version + "-" + plat.Key()
}

func (s *Store) paths(k string) (dataPath, metaPath string) {
	return filepath.Join(s.dir, k+".data"), filepath.Join(s.dir, k+".meta")
}

// keyLock returns the mutex serializing operations on one entry.
func (s *Store) keyLock(k string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[k]
	if !ok {
		l = &sync.Mutex{}
		s.locks[k] = l
	}
	return l
}

// Get looks up a cached archive. When expectedDigest is non-empty the
// stored digest must match exactly; a stale entry (the registry now
// publishes different content for this version) is invalidated and
// reported as a miss.
func (s *Store) Get(version string, plat platform.Triple, expectedDigest string) (*Entry, bool) {
	k := key(version, plat)
	l := s.keyLock(k)
	l.Lock()
	defer l.Unlock()

	dataPath, metaPath := s.paths(k)

	meta, err := readMeta(metaPath)
	if err != nil {
		return nil, false
	}

	info, err := os.Stat(dataPath)
	if err != nil {
		// Orphaned sidecar.
		os.Remove(metaPath)
		return nil, false
	}

	if info.Size() != meta.Size {
		s.logger.Warn("cache entry size mismatch, invalidating", "key", k)
		s.invalidate(k)
		return nil, false
	}

	if expectedDigest != "" && meta.Digest != expectedDigest {
		s.logger.Info("cached archive superseded upstream, invalidating",
			"key", k, "cached", meta.Digest, "expected", expectedDigest)
		s.invalidate(k)
		return nil, false
	}

	return &Entry{Path: dataPath, Digest: meta.Digest, Size: meta.Size, CachedAt: meta.CachedAt}, true
}

// Put stores the archive at sourcePath under (version, platform).
// Storing identical content twice is a no-op; storing different
// content under an occupied key fails with CacheConflict. The digest
// must be the hex SHA-256 of sourcePath.
func (s *Store) Put(version string, plat platform.Triple, sourcePath, digest string) (*Entry, error) {
	k := key(version, plat)
	l := s.keyLock(k)
	l.Lock()
	defer l.Unlock()

	dataPath, metaPath := s.paths(k)

	if existing, err := readMeta(metaPath); err == nil {
		if _, statErr := os.Stat(dataPath); statErr == nil {
			if existing.Digest == digest {
				return &Entry{Path: dataPath, Digest: existing.Digest,
					Size: existing.Size, CachedAt: existing.CachedAt}, nil
			}
			return nil, fault.New(fault.KindCacheConflict, stage,
				"key %s already holds digest %s, refusing to overwrite with %s",
				k, existing.Digest, digest)
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source file: %w", err)
	}

	// Write payload then sidecar, each via rename. A crash between the
	// two leaves an orphaned .data file that Get ignores.
	tempPath := dataPath + ".tmp"
	if err := copyFile(sourcePath, tempPath); err != nil {
		return nil, fmt.Errorf("failed to copy into cache: %w", err)
	}
	if err := os.Rename(tempPath, dataPath); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to finalize cache entry: %w", err)
	}

	meta := entryMeta{
		Version:  version,
		Platform: plat.Key(),
		Digest:   digest,
		Size:     info.Size(),
		CachedAt: time.Now().UTC(),
	}
	if err := writeMeta(metaPath, &meta); err != nil {
		os.Remove(dataPath)
		return nil, fmt.Errorf("failed to write cache metadata: %w", err)
	}

	s.logger.Debug("cached archive", "key", k, "bytes", meta.Size)
	return &Entry{Path: dataPath, Digest: digest, Size: meta.Size, CachedAt: meta.CachedAt}, nil
}

// Invalidate removes the entry for (version, platform) if present.
func (s *Store) Invalidate(version string, plat platform.Triple) {
	k := key(version, plat)
	l := s.keyLock(k)
	l.Lock()
	defer l.Unlock()
	s.invalidate(k)
}

func (s *Store) invalidate(k string) {
	dataPath, metaPath := s.paths(k)
	os.Remove(dataPath)
	os.Remove(metaPath)
}

// Clear removes every cache entry, keeping the directory.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			s.logger.Warn("failed to remove cache file", "name", entry.Name(), "error", err)
		}
	}
	return nil
}

// Info summarizes the cache contents.
type Info struct {
	EntryCount int
	TotalSize  int64
}

// Stat reports how many archives are cached and their combined size.
func (s *Store) Stat() (*Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &Info{}, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	info := &Info{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".data" {
			continue
		}
		info.EntryCount++
		if fi, err := entry.Info(); err == nil {
			info.TotalSize += fi.Size()
		}
	}
	return info, nil
}

func readMeta(metaPath string) (*entryMeta, error) {
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}
	var meta entryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func writeMeta(metaPath string, meta *entryMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tempPath := metaPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tempPath, metaPath); err != nil {
		os.Remove(tempPath)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	return dstFile.Sync()
}

// HashFile computes the hex SHA-256 of a file. Used by callers that
// need to fill in Put's digest for an archive of unknown provenance.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
