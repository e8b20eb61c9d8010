package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/core"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

const entryExtension = ".wav"

// Log formats.
const (
	logFmtRewriteMismatch = "Refusing rewrite of %s: stored %d bytes, got %d byte payload with different content"
	logFmtEntryRemoved    = "Failed to remove cache entry %s: %v"
)

// ErrEmptyCacheDir indicates the disk store was constructed without a directory.
var ErrEmptyCacheDir = errors.New("cache directory cannot be empty")

// DiskStore is a filesystem-backed core.AudioStore. Each entry is a single
// <fingerprint>.wav file, so the physical location is a pure function of the
// key and the store survives process restarts with no separate index.
type DiskStore struct {
	dir string
	log *logger.Logger
}

// NewDiskStore creates the cache directory if needed and returns a store
// rooted there.
func NewDiskStore(dir string, log *logger.Logger) (*DiskStore, error) {
	if dir == "" {
		return nil, ErrEmptyCacheDir
	}

	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("%w: creating cache directory: %w", core.ErrStoreUnavailable, err)
	}

	return &DiskStore{dir: dir, log: log}, nil
}

// Dir returns the directory backing the store, for statistics reporting.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Exists reports whether a fingerprint has a stored entry.
func (s *DiskStore) Exists(fingerprint string) (bool, error) {
	_, err := os.Stat(s.entryPath(fingerprint))
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, fmt.Errorf("%w: stat %s: %w", core.ErrStoreUnavailable, fingerprint, err)
}

// Read returns the stored audio for a fingerprint, or core.ErrNotFound.
func (s *DiskStore) Read(fingerprint string) ([]byte, error) {
	data, err := os.ReadFile(s.entryPath(fingerprint))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, fingerprint)
		}

		return nil, fmt.Errorf("%w: read %s: %w", core.ErrStoreUnavailable, fingerprint, err)
	}

	return data, nil
}

// Write persists audio under a fingerprint. Entries are write-once and
// content-addressed: rewriting identical bytes is a no-op, and rewriting
// different bytes is logged as an invariant violation while the original
// entry is kept.
func (s *DiskStore) Write(fingerprint string, audio []byte) error {
	path := s.entryPath(fingerprint)

	existing, err := os.ReadFile(path)
	if err == nil {
		if !bytes.Equal(existing, audio) {
			s.log.Error(logFmtRewriteMismatch, fingerprint, len(existing), len(audio))
		}

		return nil
	}

	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: inspecting %s before write: %w", core.ErrStoreUnavailable, fingerprint, err)
	}

	// Temp-file-then-rename keeps concurrent readers from observing a
	// partially written entry.
	tempFile, err := os.CreateTemp(s.dir, fingerprint+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp entry: %w", core.ErrStoreUnavailable, err)
	}

	_, writeErr := tempFile.Write(audio)
	closeErr := tempFile.Close()

	if writeErr != nil || closeErr != nil {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			s.log.Warn(logFmtEntryRemoved, tempFile.Name(), removeErr)
		}

		if writeErr != nil {
			return fmt.Errorf("%w: writing entry %s: %w", core.ErrStoreUnavailable, fingerprint, writeErr)
		}

		return fmt.Errorf("%w: closing entry %s: %w", core.ErrStoreUnavailable, fingerprint, closeErr)
	}

	chmodErr := os.Chmod(tempFile.Name(), filePermissions)
	if chmodErr != nil {
		s.log.Warn("Failed to set permissions on %s: %v", tempFile.Name(), chmodErr)
	}

	renameErr := os.Rename(tempFile.Name(), path)
	if renameErr != nil {
		removeErr := os.Remove(tempFile.Name())
		if removeErr != nil {
			s.log.Warn(logFmtEntryRemoved, tempFile.Name(), removeErr)
		}

		return fmt.Errorf("%w: publishing entry %s: %w", core.ErrStoreUnavailable, fingerprint, renameErr)
	}

	return nil
}

// DeleteAll removes every entry and returns how many were removed. Removing
// an already-empty store succeeds with a zero count.
func (s *DiskStore) DeleteAll() (int, error) {
	entries, err := s.entryPaths()
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, path := range entries {
		removeErr := os.Remove(path)
		if removeErr != nil {
			if os.IsNotExist(removeErr) {
				// A concurrent clear got there first.
				continue
			}

			return removed, fmt.Errorf("%w: removing %s: %w", core.ErrStoreUnavailable, path, removeErr)
		}

		removed++
	}

	return removed, nil
}

// Stats walks the store directory and reports entry count and total size.
func (s *DiskStore) Stats() (core.StoreStats, error) {
	entries, err := s.entryPaths()
	if err != nil {
		return core.StoreStats{}, err
	}

	stats := core.StoreStats{EntryCount: 0, TotalSizeBytes: 0}

	for _, path := range entries {
		info, statErr := os.Stat(path)
		if statErr != nil {
			if os.IsNotExist(statErr) {
				continue
			}

			return core.StoreStats{}, fmt.Errorf("%w: stat %s: %w", core.ErrStoreUnavailable, path, statErr)
		}

		stats.EntryCount++
		stats.TotalSizeBytes += info.Size()
	}

	return stats, nil
}

func (s *DiskStore) entryPath(fingerprint string) string {
	return filepath.Join(s.dir, fingerprint+entryExtension)
}

func (s *DiskStore) entryPaths() ([]string, error) {
	pattern := filepath.Join(s.dir, "*"+entryExtension)

	entries, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: listing entries: %w", core.ErrStoreUnavailable, err)
	}

	return entries, nil
}
