package cache

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/core"
)

// MemoryStore is a map-backed core.AudioStore with the same write-once,
// content-addressed semantics as DiskStore. It backs tests and cacheless
// deployments where durability is not wanted.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]byte
	log     *logger.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		mu:      sync.RWMutex{},
		entries: make(map[string][]byte),
		log:     log,
	}
}

// Exists reports whether a fingerprint has a stored entry.
func (s *MemoryStore) Exists(fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.entries[fingerprint]

	return ok, nil
}

// Read returns the stored audio for a fingerprint, or core.ErrNotFound.
func (s *MemoryStore) Read(fingerprint string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.entries[fingerprint]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, fingerprint)
	}

	copied := make([]byte, len(data))
	copy(copied, data)

	return copied, nil
}

// Write stores audio under a fingerprint with write-once semantics.
func (s *MemoryStore) Write(fingerprint string, audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.entries[fingerprint]
	if ok {
		if !bytes.Equal(existing, audio) {
			s.log.Error(logFmtRewriteMismatch, fingerprint, len(existing), len(audio))
		}

		return nil
	}

	copied := make([]byte, len(audio))
	copy(copied, audio)

	s.entries[fingerprint] = copied

	return nil
}

// DeleteAll removes every entry and returns how many were removed.
func (s *MemoryStore) DeleteAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := len(s.entries)
	s.entries = make(map[string][]byte)

	return removed, nil
}

// Stats reports entry count and total payload size.
func (s *MemoryStore) Stats() (core.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := core.StoreStats{EntryCount: len(s.entries), TotalSizeBytes: 0}
	for _, data := range s.entries {
		stats.TotalSizeBytes += int64(len(data))
	}

	return stats, nil
}
