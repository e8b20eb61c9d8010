package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/voice-service/internal/cache"
	"github.com/book-expert/voice-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "cache-test.log")
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}

	t.Cleanup(func() {
		_ = testLogger.Close()
	})

	return testLogger
}

func TestNewDiskStore_EmptyDir(t *testing.T) {
	t.Parallel()

	_, err := cache.NewDiskStore("", createTestLogger(t))
	require.ErrorIs(t, err, cache.ErrEmptyCacheDir)
}

func TestDiskStore_WriteReadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := cache.NewDiskStore(t.TempDir(), createTestLogger(t))
	require.NoError(t, err)

	fingerprint := cache.DeriveFingerprint("hello hollywood!", "holly", 24000, nil)
	audio := []byte("riff-wav-payload")

	exists, err := store.Exists(fingerprint)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.Read(fingerprint)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Write(fingerprint, audio))

	exists, err = store.Exists(fingerprint)
	require.NoError(t, err)
	assert.True(t, exists)

	read, err := store.Read(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, audio, read)
}

func TestDiskStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log := createTestLogger(t)

	store, err := cache.NewDiskStore(dir, log)
	require.NoError(t, err)

	fingerprint := cache.DeriveFingerprint("persist me", "holly", 24000, nil)
	require.NoError(t, store.Write(fingerprint, []byte("durable-audio")))

	reopened, err := cache.NewDiskStore(dir, log)
	require.NoError(t, err)

	read, err := reopened.Read(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, []byte("durable-audio"), read)
}

func TestDiskStore_WriteIsIdempotent(t *testing.T) {
	t.Parallel()

	store, err := cache.NewDiskStore(t.TempDir(), createTestLogger(t))
	require.NoError(t, err)

	fingerprint := cache.DeriveFingerprint("same", "holly", 24000, nil)
	audio := []byte("same-bytes")

	require.NoError(t, store.Write(fingerprint, audio))
	require.NoError(t, store.Write(fingerprint, audio))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
}

func TestDiskStore_RewriteMismatchKeepsOriginal(t *testing.T) {
	t.Parallel()

	store, err := cache.NewDiskStore(t.TempDir(), createTestLogger(t))
	require.NoError(t, err)

	fingerprint := cache.DeriveFingerprint("conflict", "holly", 24000, nil)

	require.NoError(t, store.Write(fingerprint, []byte("original")))
	require.NoError(t, store.Write(fingerprint, []byte("different")))

	read, err := store.Read(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), read)
}

func TestDiskStore_DeleteAll(t *testing.T) {
	t.Parallel()

	store, err := cache.NewDiskStore(t.TempDir(), createTestLogger(t))
	require.NoError(t, err)

	for _, phrase := range []string{"one", "two", "three"} {
		fingerprint := cache.DeriveFingerprint(phrase, "holly", 24000, nil)
		require.NoError(t, store.Write(fingerprint, []byte(phrase)))
	}

	removed, err := store.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EntryCount)
	assert.Equal(t, int64(0), stats.TotalSizeBytes)

	// Clearing an empty store succeeds with a zero count.
	removed, err = store.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func TestDiskStore_StatsIgnoresForeignFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := cache.NewDiskStore(dir, createTestLogger(t))
	require.NoError(t, err)

	fingerprint := cache.DeriveFingerprint("counted", "holly", 24000, nil)
	require.NoError(t, store.Write(fingerprint, []byte("counted-bytes")))

	// Non-entry files in the cache directory do not participate in stats.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)
	assert.Equal(t, int64(len("counted-bytes")), stats.TotalSizeBytes)
}

func TestMemoryStore_ContractMatchesDiskStore(t *testing.T) {
	t.Parallel()

	store := cache.NewMemoryStore(createTestLogger(t))

	fingerprint := cache.DeriveFingerprint("hello", "holly", 24000, nil)

	_, err := store.Read(fingerprint)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Write(fingerprint, []byte("audio")))
	require.NoError(t, store.Write(fingerprint, []byte("other")))

	read, err := store.Read(fingerprint)
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), read)

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EntryCount)

	removed, err := store.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}
